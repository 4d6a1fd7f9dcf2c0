package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/crudapp/internal/domain/model"
)

// ChangesDependencies defines the interface for reading the change journal.
type ChangesDependencies interface {
	RecentChanges(ctx context.Context, n int) []model.Change
}

// ChangesHandler handles change journal requests.
type ChangesHandler struct {
	deps     ChangesDependencies
	maxLimit int
}

// NewChangesHandler creates a new changes handler.
func NewChangesHandler(deps ChangesDependencies, maxLimit int) *ChangesHandler {
	return &ChangesHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

type changesResponse struct {
	Changes []model.Change `json:"changes"`
}

// HandleGetChanges handles GET /changes?limit=N requests.
// Without a limit the handler returns up to maxLimit entries.
func (h *ChangesHandler) HandleGetChanges(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_changes"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", h.maxLimit)))
			return
		}
	}
	changes := h.deps.RecentChanges(r.Context(), n)
	if changes == nil {
		changes = []model.Change{}
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: changes})
}
