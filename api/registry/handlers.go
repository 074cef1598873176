package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"CollectLedger/api"
	"CollectLedger/api/constants"

	"github.com/gorilla/mux"
)

// ConfigStore is the persistence the configuration handlers need; *Store
// implements it.
type ConfigStore interface {
	Tree(ctx context.Context) ([]Branch, error)
	CreateBranch(ctx context.Context, p BranchPayload) (int64, error)
	UpdateBranch(ctx context.Context, id int64, p BranchPayload) error
	DeleteBranch(ctx context.Context, id int64) error
	CreateRegister(ctx context.Context, p RegisterPayload) (int64, error)
	UpdateRegister(ctx context.Context, id int64, p RegisterPayload) error
	DeleteRegister(ctx context.Context, id int64) error
	CreateTerminal(ctx context.Context, p TerminalPayload) (int64, error)
	UpdateTerminal(ctx context.Context, id int64, p TerminalPayload) (string, error)
	DeleteTerminal(ctx context.Context, id int64) (string, error)
}

// Invalidator drops cached terminal lookups after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, externalIDs ...string) error
}

type Handlers struct {
	Store ConfigStore
	Cache Invalidator
}

func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/config/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/config/tree", h.tree).Methods(http.MethodGet)
	r.HandleFunc("/config/{kind}", h.create).Methods(http.MethodPost)
	r.HandleFunc("/config/{kind}/{id:[0-9]+}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/config/{kind}/{id:[0-9]+}", h.remove).Methods(http.MethodDelete)
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	api.RespondWithPayload(w, http.StatusOK, "registry service is healthy", nil)
}

func (h *Handlers) tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.Store.Tree(r.Context())
	if err != nil {
		api.LogError("configuration tree: %v", err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrConfigTreeFailed)
		return
	}
	api.RespondWithPayload(w, http.StatusOK, "", tree)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(mux.Vars(r)["kind"])
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.Formatf(constants.ErrUnknownConfigKind, mux.Vars(r)["kind"]))
		return
	}
	ctx := r.Context()
	var (
		id  int64
		err error
	)
	switch kind {
	case KindBranch:
		var p BranchPayload
		if !decodePayload(w, r, &p) {
			return
		}
		id, err = h.Store.CreateBranch(ctx, p)
	case KindRegister:
		var p RegisterPayload
		if !decodePayload(w, r, &p) {
			return
		}
		id, err = h.Store.CreateRegister(ctx, p)
	case KindTerminal:
		var p TerminalPayload
		if !decodePayload(w, r, &p) {
			return
		}
		id, err = h.Store.CreateTerminal(ctx, p)
		if err == nil {
			h.invalidate(ctx, p.ExternalID)
		}
	}
	if err != nil {
		respondStoreError(w, kind, err)
		return
	}
	api.LogInfo("config %s %d created", kind, id)
	api.RespondWithPayload(w, http.StatusCreated, "Created", map[string]int64{"id": id})
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := kindAndID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var err error
	switch kind {
	case KindBranch:
		var p BranchPayload
		if !decodePayload(w, r, &p) {
			return
		}
		err = h.Store.UpdateBranch(ctx, id, p)
	case KindRegister:
		var p RegisterPayload
		if !decodePayload(w, r, &p) {
			return
		}
		err = h.Store.UpdateRegister(ctx, id, p)
	case KindTerminal:
		var p TerminalPayload
		if !decodePayload(w, r, &p) {
			return
		}
		var previous string
		previous, err = h.Store.UpdateTerminal(ctx, id, p)
		if err == nil {
			h.invalidate(ctx, previous, p.ExternalID)
		}
	}
	if err != nil {
		respondStoreError(w, kind, err)
		return
	}
	api.RespondWithPayload(w, http.StatusOK, "Updated", nil)
}

func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := kindAndID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var err error
	switch kind {
	case KindBranch:
		err = h.Store.DeleteBranch(ctx, id)
	case KindRegister:
		err = h.Store.DeleteRegister(ctx, id)
	case KindTerminal:
		var externalID string
		externalID, err = h.Store.DeleteTerminal(ctx, id)
		if err == nil {
			h.invalidate(ctx, externalID)
		}
	}
	if err != nil {
		respondStoreError(w, kind, err)
		return
	}
	api.LogInfo("config %s %d deleted", kind, id)
	api.RespondWithPayload(w, http.StatusOK, "Deleted", nil)
}

func (h *Handlers) invalidate(ctx context.Context, ids ...string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, ids...); err != nil {
		api.LogError("terminal cache invalidation %v: %v", ids, err)
	}
}

type normalizer interface {
	Normalize()
}

func decodePayload(w http.ResponseWriter, r *http.Request, dst normalizer) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return false
	}
	dst.Normalize()
	if err := Validate(dst); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.Formatf(constants.ErrValidationFailed, err.Error()))
		return false
	}
	return true
}

func kindAndID(w http.ResponseWriter, r *http.Request) (Kind, int64, bool) {
	vars := mux.Vars(r)
	kind, ok := ParseKind(vars["kind"])
	if !ok {
		api.RespondWithError(w, http.StatusNotFound, constants.Formatf(constants.ErrUnknownConfigKind, vars["kind"]))
		return "", 0, false
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidID)
		return "", 0, false
	}
	return kind, id, true
}

func respondStoreError(w http.ResponseWriter, kind Kind, err error) {
	if errors.Is(err, ErrNotFound) {
		api.RespondWithError(w, http.StatusNotFound, notFoundMessage(kind))
		return
	}
	if status, msg, ok := pqUserFriendlyMessage(err); ok {
		if status == http.StatusInternalServerError {
			api.LogError("config %s: %v", kind, err)
		}
		api.RespondWithError(w, status, msg)
		return
	}
	api.LogError("config %s: %v", kind, err)
	api.RespondWithError(w, http.StatusInternalServerError, constants.ErrConfigTreeFailed)
}

func notFoundMessage(kind Kind) string {
	switch kind {
	case KindBranch:
		return constants.ErrBranchNotFound
	case KindRegister:
		return constants.ErrRegisterNotFound
	}
	return constants.ErrTerminalNotFound
}
