package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

// IdempotencyHeader names the optional create deduplication key.
const IdempotencyHeader = "Idempotency-Key"

const (
	editPrefix   = "/person/edit/"
	deletePrefix = "/person/delete/"

	// deleteCommand confirms a delete; any other command cancels it.
	deleteCommand = "Delete"
)

// PersonDependencies defines the person operations used by the handlers.
type PersonDependencies interface {
	ListPersons(ctx context.Context) ([]model.Person, error)
	GetPerson(ctx context.Context, id int64) (model.Person, error)
	CreatePerson(ctx context.Context, p model.Person, key string) (model.Person, bool, error)
	UpdatePerson(ctx context.Context, p model.Person) (model.Person, error)
	DeletePerson(ctx context.Context, id int64) error
}

// PersonHandler handles the person list, create, edit and delete routes.
type PersonHandler struct {
	deps PersonDependencies
}

// NewPersonHandler creates a new person handler.
func NewPersonHandler(deps PersonDependencies) *PersonHandler {
	return &PersonHandler{deps: deps}
}

type listResponse struct {
	Persons []model.Person `json:"persons"`
}

// formResponse is the create/edit form view: the record plus its messages.
type formResponse struct {
	Person model.Person `json:"person"`
	Errors []string     `json:"errors"`
}

type createResponse struct {
	Person    model.Person `json:"person"`
	Duplicate bool         `json:"duplicate"`
}

type personResponse struct {
	Person model.Person `json:"person"`
}

type deleteRequest struct {
	Command  string `json:"command"`
	PersonID int64  `json:"personId"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleHome handles GET / by redirecting to the list.
func (h *PersonHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/person/list", http.StatusFound)
}

// HandleList handles GET /person/list.
func (h *PersonHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.person_list"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	persons, err := h.deps.ListPersons(r.Context())
	if err != nil {
		writeOpError(w, op, err)
		return
	}
	if persons == nil {
		persons = []model.Person{}
	}
	writeJSON(w, http.StatusOK, listResponse{Persons: persons})
}

// HandleCreate handles GET (empty form) and POST /person/create.
func (h *PersonHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.person_create"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, formResponse{Person: model.Person{}, Errors: []string{}})
	case http.MethodPost:
		in, err := decodePerson(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		p := in.person()
		p.PersonID = 0
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))

		created, dup, err := h.deps.CreatePerson(r.Context(), p, key)
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			metrics.RecordValidationFailure()
			p.Normalize()
			writeJSON(w, http.StatusUnprocessableEntity, formResponse{Person: p, Errors: verr.Errors})
			return
		}
		if err != nil {
			writeOpError(w, op, err)
			return
		}
		if dup {
			writeJSON(w, http.StatusOK, createResponse{Person: created, Duplicate: true})
			return
		}
		writeJSON(w, http.StatusCreated, createResponse{Person: created})
	default:
		http.NotFound(w, r)
	}
}

// HandleEdit handles GET /person/edit/{personId} and POST /person/edit.
func (h *PersonHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	const op = "api.person_edit"
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, editPrefix):
		p, ok := h.load(w, r, op, strings.TrimPrefix(r.URL.Path, editPrefix))
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, formResponse{Person: p, Errors: []string{}})
	case r.Method == http.MethodPost && r.URL.Path == "/person/edit":
		in, err := decodePerson(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if _, err := parseID(in.PersonID.String()); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		p := in.person()
		updated, err := h.deps.UpdatePerson(r.Context(), p)
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			metrics.RecordValidationFailure()
			p.Normalize()
			writeJSON(w, http.StatusUnprocessableEntity, formResponse{Person: p, Errors: verr.Errors})
			return
		}
		if err != nil {
			writeOpError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, personResponse{Person: updated})
	default:
		http.NotFound(w, r)
	}
}

// HandleDelete handles GET /person/delete/{personId} and POST /person/delete.
func (h *PersonHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.person_delete"
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, deletePrefix):
		p, ok := h.load(w, r, op, strings.TrimPrefix(r.URL.Path, deletePrefix))
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, personResponse{Person: p})
	case r.Method == http.MethodPost && r.URL.Path == "/person/delete":
		req, err := decodeDelete(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if req.Command != deleteCommand {
			writeJSON(w, http.StatusOK, statusResponse{Status: "cancelled"})
			return
		}
		if req.PersonID < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if err := h.deps.DeletePerson(r.Context(), req.PersonID); err != nil {
			writeOpError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
	default:
		http.NotFound(w, r)
	}
}

// load reads the person named by a path id, writing the error response on failure.
func (h *PersonHandler) load(w http.ResponseWriter, r *http.Request, op, raw string) (model.Person, bool) {
	if strings.Contains(raw, "/") {
		http.NotFound(w, r)
		return model.Person{}, false
	}
	id, err := parseID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return model.Person{}, false
	}
	p, err := h.deps.GetPerson(r.Context(), id)
	if err != nil {
		writeOpError(w, op, err)
		return model.Person{}, false
	}
	return p, true
}

func decodeDelete(r *http.Request) (deleteRequest, error) {
	var req deleteRequest
	if !isForm(r) {
		err := decodeBody(r, &req)
		return req, err
	}
	form, err := formValues(r)
	if err != nil {
		return req, err
	}
	if v := form["command"]; len(v) > 0 {
		req.Command = v[0]
	}
	if v := form["personId"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		id, err := parseID(v[0])
		if err != nil {
			return req, err
		}
		req.PersonID = id
	}
	return req, nil
}
