// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/crudapp/internal/adapters/repository"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

const (
	defaultMaxChangesLimit = 100
	maxBodyBytes           = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ListPersons(ctx context.Context) ([]model.Person, error)
	GetPerson(ctx context.Context, id int64) (model.Person, error)

	// CreatePerson stores p unless key was already used; the bool reports a duplicate.
	CreatePerson(ctx context.Context, p model.Person, key string) (model.Person, bool, error)
	UpdatePerson(ctx context.Context, p model.Person) (model.Person, error)
	DeletePerson(ctx context.Context, id int64) error

	RecentChanges(ctx context.Context, n int) []model.Change
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	personHandler  *PersonHandler
	changesHandler *ChangesHandler

	allowedOrigins []string
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxChangesLimit caps the limit accepted by GET /changes.
func WithMaxChangesLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.changesHandler.maxLimit = n
		}
	}
}

// WithAllowedOrigins sets the origins answered with CORS headers.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		personHandler:  NewPersonHandler(deps),
		changesHandler: NewChangesHandler(deps, defaultMaxChangesLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/changes", MetricsMiddleware(s.changesHandler.HandleGetChanges, "changes"))

	mux.HandleFunc("/person/list", MetricsMiddleware(s.personHandler.HandleList, "person_list"))
	mux.HandleFunc("/person/create", MetricsMiddleware(s.personHandler.HandleCreate, "person_create"))
	mux.HandleFunc("/person/edit", MetricsMiddleware(s.personHandler.HandleEdit, "person_edit"))
	mux.HandleFunc("/person/edit/", MetricsMiddleware(s.personHandler.HandleEdit, "person_edit"))
	mux.HandleFunc("/person/delete", MetricsMiddleware(s.personHandler.HandleDelete, "person_delete"))
	mux.HandleFunc("/person/delete/", MetricsMiddleware(s.personHandler.HandleDelete, "person_delete"))

	// "/" matches everything unmatched; HandleHome only answers the exact path
	mux.HandleFunc("/", MetricsMiddleware(s.personHandler.HandleHome, "home"))
}

// Handler wraps h with request-id and CORS handling.
func (s *Server) Handler(h http.Handler) http.Handler {
	return RequestIDMiddleware(CORSMiddleware(s.allowedOrigins)(h))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeOpError maps err onto a status and error code.
func writeOpError(w http.ResponseWriter, op string, err error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.As(err, &verr):
		metrics.RecordValidationFailure()
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", WrapKind(op, ErrValidation, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}

// isForm reports whether the request body is an HTML form post.
func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// decodeBody reads a JSON body into v. Form posts are handled by the caller.
func decodeBody(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func formValues(r *http.Request) (map[string][]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return r.PostForm, nil
}

// parseID parses a positive person id.
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing person id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid person id %q", s)
	}
	return id, nil
}

// personInput is the body of create and edit posts. PersonID stays a
// json.Number so empty form values and missing ids read the same.
type personInput struct {
	PersonID      json.Number `json:"personId"`
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	EmailAddress  string      `json:"emailAddress"`
	StreetAddress string      `json:"streetAddress"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	ZipCode       string      `json:"zipCode"`
}

func (in personInput) person() model.Person {
	id, _ := strconv.ParseInt(in.PersonID.String(), 10, 64)
	return model.Person{
		PersonID:      id,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		EmailAddress:  in.EmailAddress,
		StreetAddress: in.StreetAddress,
		City:          in.City,
		State:         in.State,
		ZipCode:       in.ZipCode,
	}
}

// decodePerson reads a person from a JSON or form body.
func decodePerson(r *http.Request) (personInput, error) {
	var in personInput
	if isForm(r) {
		form, err := formValues(r)
		if err != nil {
			return in, err
		}
		get := func(k string) string {
			if v := form[k]; len(v) > 0 {
				return v[0]
			}
			return ""
		}
		in = personInput{
			PersonID:      json.Number(strings.TrimSpace(get("personId"))),
			FirstName:     get("firstName"),
			LastName:      get("lastName"),
			EmailAddress:  get("emailAddress"),
			StreetAddress: get("streetAddress"),
			City:          get("city"),
			State:         get("state"),
			ZipCode:       get("zipCode"),
		}
		return in, nil
	}
	err := decodeBody(r, &in)
	return in, err
}
