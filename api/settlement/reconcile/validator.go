package reconcile

import (
	"context"
	"sync"

	"CollectLedger/api/settlement/model"
)

// Validator memoizes terminal lookups for the lifetime of one import.
// Lookup failures are not cached.
type Validator struct {
	registry TerminalRegistry

	mu    sync.Mutex
	known map[string]bool
}

func NewValidator(registry TerminalRegistry) *Validator {
	return &Validator{registry: registry, known: make(map[string]bool)}
}

func (v *Validator) Known(ctx context.Context, p model.Provider, terminalID string) (bool, error) {
	memo := string(p) + ":" + terminalID
	v.mu.Lock()
	ok, cached := v.known[memo]
	v.mu.Unlock()
	if cached {
		return ok, nil
	}

	ok, err := v.registry.Exists(ctx, p, terminalID)
	if err != nil {
		return false, err
	}
	v.mu.Lock()
	v.known[memo] = ok
	v.mu.Unlock()
	return ok, nil
}
