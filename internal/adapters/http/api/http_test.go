package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/okian/crudapp/internal/adapters/http/api"
	"github.com/okian/crudapp/internal/adapters/repository"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/requestid"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies keeps persons in a map and records changes.
type mockDependencies struct {
	mu      sync.Mutex
	persons map[int64]model.Person
	keys    map[string]int64
	nextID  int64
	changes []model.Change
	failErr error
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		persons: make(map[int64]model.Person),
		keys:    make(map[string]int64),
	}
}

func (m *mockDependencies) ListPersons(ctx context.Context) ([]model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]model.Person, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out, nil
}

func (m *mockDependencies) GetPerson(ctx context.Context, id int64) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[id]
	if !ok {
		return model.Person{}, repository.ErrNotFound
	}
	return p, nil
}

func (m *mockDependencies) CreatePerson(ctx context.Context, p model.Person, key string) (model.Person, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok && key != "" {
		return m.persons[id], true, nil
	}
	p.Normalize()
	if errs := p.Validate(); len(errs) > 0 {
		return model.Person{}, false, &model.ValidationError{Errors: errs}
	}
	m.nextID++
	p.PersonID = m.nextID
	m.persons[p.PersonID] = p
	if key != "" {
		m.keys[key] = p.PersonID
	}
	m.changes = append(m.changes, model.Change{Kind: model.ChangeCreated, PersonID: p.PersonID, RequestID: requestid.From(ctx)})
	return p, false, nil
}

func (m *mockDependencies) UpdatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Normalize()
	if errs := p.Validate(); len(errs) > 0 {
		return model.Person{}, &model.ValidationError{Errors: errs}
	}
	if _, ok := m.persons[p.PersonID]; !ok {
		return model.Person{}, repository.ErrNotFound
	}
	m.persons[p.PersonID] = p
	return p, nil
}

func (m *mockDependencies) DeletePerson(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.persons, id)
	return nil
}

func (m *mockDependencies) RecentChanges(ctx context.Context, n int) []model.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Change, 0, n)
	for i := len(m.changes) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.changes[i])
	}
	return out
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

const validPersonJSON = `{
	"firstName": "Ada",
	"lastName": "Lovelace",
	"emailAddress": "ada@example.com",
	"streetAddress": "12 St James's Square",
	"city": "London",
	"state": "LN",
	"zipCode": "02110"
}`

func newTestHandler(deps *mockDependencies) http.Handler {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}},
		api.WithMaxChangesLimit(10),
		api.WithAllowedOrigins([]string{"http://localhost:3000"}),
	)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return server.Handler(mux)
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)

		Convey("When requesting the root", func() {
			w := do(h, http.MethodGet, "/", "", nil)

			Convey("Then it redirects to the list", func() {
				So(w.Code, ShouldEqual, http.StatusFound)
				So(w.Header().Get("Location"), ShouldEqual, "/person/list")
			})
		})

		Convey("When requesting an unknown path", func() {
			w := do(h, http.MethodGet, "/unknown", "", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When requesting health and stats", func() {
			So(do(h, http.MethodGet, "/healthz", "", nil).Code, ShouldEqual, http.StatusOK)
			w := do(h, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("When using the wrong method", func() {
			So(do(h, http.MethodPost, "/person/list", "{}", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/stats", "{}", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/person/edit", "", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/person/edit/1", validPersonJSON, nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPersonHandler_List(t *testing.T) {
	Convey("Given an empty directory", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)

		Convey("When listing", func() {
			w := do(h, http.MethodGet, "/person/list", "", nil)

			Convey("Then persons is an empty array", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"persons":[]}`)
			})
		})

		Convey("When the backend fails", func() {
			deps.failErr = errors.New("db down")
			w := do(h, http.MethodGet, "/person/list", "", nil)

			Convey("Then it answers 500 with an internal_error code", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestPersonHandler_Create(t *testing.T) {
	Convey("Given a person handler", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)

		Convey("When fetching the create form", func() {
			w := do(h, http.MethodGet, "/person/create", "", nil)

			Convey("Then an empty person and no errors are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["errors"], ShouldBeEmpty)
				So(body["person"].(map[string]any)["personId"], ShouldEqual, 0.0)
			})
		})

		Convey("When posting a valid JSON person", func() {
			w := do(h, http.MethodPost, "/person/create", validPersonJSON, nil)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decode(w)
				So(body["duplicate"], ShouldEqual, false)
				So(body["person"].(map[string]any)["personId"], ShouldEqual, 1.0)
				So(body["person"].(map[string]any)["firstName"], ShouldEqual, "Ada")
			})

			Convey("Then the list contains it", func() {
				w := do(h, http.MethodGet, "/person/list", "", nil)
				So(w.Body.String(), ShouldContainSubstring, `"lastName":"Lovelace"`)
			})
		})

		Convey("When posting a form-encoded person", func() {
			form := url.Values{
				"firstName":     {"Grace"},
				"lastName":      {"Hopper"},
				"emailAddress":  {"grace@example.com"},
				"streetAddress": {"1 Navy Way"},
				"city":          {"Arlington"},
				"state":         {"VA"},
				"zipCode":       {"22201"},
			}
			req := httptest.NewRequest(http.MethodPost, "/person/create", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.persons[1].LastName, ShouldEqual, "Hopper")
			})
		})

		Convey("When posting an invalid person", func() {
			w := do(h, http.MethodPost, "/person/create", `{"firstName":" Ada ","state":"Mass"}`, nil)

			Convey("Then it answers 422 with the form and sorted messages", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				body := decode(w)
				So(body["person"].(map[string]any)["firstName"], ShouldEqual, "Ada")
				errs := body["errors"].([]any)
				So(len(errs), ShouldEqual, 6)
				So(errs[0], ShouldEqual, model.MsgCity)
				So(errs, ShouldContain, model.MsgState)
				So(errs, ShouldNotContain, model.MsgFirstName)
			})
		})

		Convey("When posting malformed JSON", func() {
			w := do(h, http.MethodPost, "/person/create", `{"firstName":`, nil)

			Convey("Then it answers 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When posting twice with the same idempotency key", func() {
			hdr := map[string]string{api.IdempotencyHeader: "key-1"}
			first := do(h, http.MethodPost, "/person/create", validPersonJSON, hdr)
			second := do(h, http.MethodPost, "/person/create", validPersonJSON, hdr)

			Convey("Then the second answers 200 with the first person", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(second.Code, ShouldEqual, http.StatusOK)
				body := decode(second)
				So(body["duplicate"], ShouldEqual, true)
				So(body["person"].(map[string]any)["personId"], ShouldEqual, 1.0)
				So(len(deps.persons), ShouldEqual, 1)
			})
		})
	})
}

func TestPersonHandler_Edit(t *testing.T) {
	Convey("Given one stored person", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)
		So(do(h, http.MethodPost, "/person/create", validPersonJSON, nil).Code, ShouldEqual, http.StatusCreated)

		Convey("When fetching the edit form", func() {
			w := do(h, http.MethodGet, "/person/edit/1", "", nil)

			Convey("Then the person is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["person"].(map[string]any)["city"], ShouldEqual, "London")
			})
		})

		Convey("When fetching an unknown or malformed id", func() {
			So(do(h, http.MethodGet, "/person/edit/99", "", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/person/edit/abc", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/person/edit/0", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/person/edit/1/x", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When posting an update", func() {
			body := strings.Replace(validPersonJSON, `"city": "London"`, `"personId": 1, "city": "Paris"`, 1)
			w := do(h, http.MethodPost, "/person/edit", body, nil)

			Convey("Then the record changes", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["person"].(map[string]any)["city"], ShouldEqual, "Paris")
				So(deps.persons[1].City, ShouldEqual, "Paris")
			})
		})

		Convey("When posting an update for an unknown id", func() {
			body := strings.Replace(validPersonJSON, `"city"`, `"personId": 42, "city"`, 1)
			w := do(h, http.MethodPost, "/person/edit", body, nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When posting an update without an id", func() {
			w := do(h, http.MethodPost, "/person/edit", validPersonJSON, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting an invalid update", func() {
			w := do(h, http.MethodPost, "/person/edit", `{"personId": 1, "zipCode": "1"}`, nil)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode(w)["errors"], ShouldContain, model.MsgZipCode)
		})
	})
}

func TestPersonHandler_Delete(t *testing.T) {
	Convey("Given one stored person", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)
		So(do(h, http.MethodPost, "/person/create", validPersonJSON, nil).Code, ShouldEqual, http.StatusCreated)

		Convey("When fetching the delete confirmation", func() {
			w := do(h, http.MethodGet, "/person/delete/1", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["person"].(map[string]any)["firstName"], ShouldEqual, "Ada")
			So(do(h, http.MethodGet, "/person/delete/7", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the delete is cancelled", func() {
			w := do(h, http.MethodPost, "/person/delete", `{"command":"Cancel","personId":1}`, nil)

			Convey("Then the person is kept", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "cancelled")
				So(len(deps.persons), ShouldEqual, 1)
			})
		})

		Convey("When the delete is confirmed", func() {
			w := do(h, http.MethodPost, "/person/delete", `{"command":"Delete","personId":1}`, nil)

			Convey("Then the person is removed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "deleted")
				So(len(deps.persons), ShouldEqual, 0)
			})
		})

		Convey("When the delete is confirmed by form post", func() {
			req := httptest.NewRequest(http.MethodPost, "/person/delete", strings.NewReader("command=Delete&personId=1"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(deps.persons), ShouldEqual, 0)
		})

		Convey("When the delete has no id", func() {
			w := do(h, http.MethodPost, "/person/delete", `{"command":"Delete"}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestChangesHandler(t *testing.T) {
	Convey("Given two journaled changes", t, func() {
		deps := newMockDependencies()
		h := newTestHandler(deps)
		do(h, http.MethodPost, "/person/create", validPersonJSON, map[string]string{requestid.Header: "req-a"})
		do(h, http.MethodPost, "/person/create", validPersonJSON, map[string]string{requestid.Header: "req-b"})

		Convey("When reading with a limit", func() {
			w := do(h, http.MethodGet, "/changes?limit=1", "", nil)

			Convey("Then the newest change comes back with its request id", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				changes := decode(w)["changes"].([]any)
				So(len(changes), ShouldEqual, 1)
				So(changes[0].(map[string]any)["requestId"], ShouldEqual, "req-b")
			})
		})

		Convey("When reading without a limit", func() {
			w := do(h, http.MethodGet, "/changes", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(decode(w)["changes"].([]any)), ShouldEqual, 2)
		})

		Convey("When the limit is invalid or too large", func() {
			for _, limit := range []string{"0", "x", "11"} {
				w := do(h, http.MethodGet, "/changes?limit="+limit, "", nil)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "bad_request")
				So(body["message"], ShouldContainSubstring, "between 1 and 10")
			}
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the wrapped handler", t, func() {
		h := newTestHandler(newMockDependencies())

		Convey("When no request id is sent", func() {
			w := do(h, http.MethodGet, "/person/list", "", nil)

			Convey("Then one is generated", func() {
				So(w.Header().Get(requestid.Header), ShouldNotBeEmpty)
			})
		})

		Convey("When a request id is sent", func() {
			w := do(h, http.MethodGet, "/person/list", "", map[string]string{requestid.Header: "abc-123"})

			Convey("Then it is echoed", func() {
				So(w.Header().Get(requestid.Header), ShouldEqual, "abc-123")
			})
		})

		Convey("When an allowed origin calls", func() {
			w := do(h, http.MethodGet, "/person/list", "", map[string]string{"Origin": "http://localhost:3000"})

			Convey("Then CORS headers are set", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:3000")
			})
		})

		Convey("When another origin calls", func() {
			w := do(h, http.MethodGet, "/person/list", "", map[string]string{"Origin": "http://evil.example"})

			Convey("Then no CORS headers are set", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When a preflight arrives", func() {
			w := do(h, http.MethodOptions, "/person/create", "", map[string]string{
				"Origin":                        "http://localhost:3000",
				"Access-Control-Request-Method": "POST",
			})

			Convey("Then it answers 204", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Headers"), ShouldContainSubstring, "Idempotency-Key")
			})
		})
	})
}
