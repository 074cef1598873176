package reconcile

import (
	"context"

	"CollectLedger/api/settlement/model"

	"github.com/shopspring/decimal"
)

// LedgerStore persists one entry per unique key.
type LedgerStore interface {
	Get(ctx context.Context, key string) (model.Entry, bool, error)
	// Upsert writes e under e.Key and reports whether the row was new.
	Upsert(ctx context.Context, e model.Entry) (inserted bool, err error)
	// UpsertNetted writes a card entry and subtracts cashDelta from the CASH
	// entry of the same provider, terminal and date. Both writes land or
	// neither does. A missing CASH entry is not an error.
	UpsertNetted(ctx context.Context, card model.Entry, cashDelta decimal.Decimal) (inserted bool, err error)
}

// TerminalRegistry answers whether a terminal id is configured for a provider.
type TerminalRegistry interface {
	Exists(ctx context.Context, provider model.Provider, terminalID string) (bool, error)
}
