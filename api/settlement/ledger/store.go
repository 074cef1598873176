package ledger

import (
	"context"
	"errors"
	"fmt"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/reconcile"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBExecutor is satisfied by *pgxpool.Pool and pgx.Tx.
type DBExecutor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
}

// Store keeps ledger entries and import batches in Postgres.
type Store struct {
	db DBExecutor
}

func NewStore(db DBExecutor) *Store {
	return &Store{db: db}
}

const selectEntry = `
SELECT unique_key, provider, terminal_id, entry_date, payment_method,
       amount, item_count, returns_amount, extra_cash_amount, extra_card_amount
FROM ledger_entries
WHERE unique_key = $1`

func (s *Store) Get(ctx context.Context, key string) (model.Entry, bool, error) {
	var e model.Entry
	var provider, method string
	err := s.db.QueryRow(ctx, selectEntry, key).Scan(
		&e.Key, &provider, &e.TerminalID, &e.Date, &method,
		&e.Amount, &e.Count, &e.Returns, &e.ExtraCash, &e.ExtraCard,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entry{}, false, nil
	}
	if err != nil {
		return model.Entry{}, false, fmt.Errorf("ledger get %s: %w", key, err)
	}
	e.Provider = model.Provider(provider)
	e.Method = model.PaymentMethod(method)
	return e, true, nil
}

// xmax is zero only on rows created by this statement
const upsertEntry = `
INSERT INTO ledger_entries (
    unique_key, provider, terminal_id, entry_date, payment_method,
    amount, item_count, returns_amount, extra_cash_amount, extra_card_amount,
    created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9::numeric, $10::numeric, now(), now())
ON CONFLICT (unique_key) DO UPDATE SET
    amount            = EXCLUDED.amount,
    item_count        = EXCLUDED.item_count,
    returns_amount    = EXCLUDED.returns_amount,
    extra_cash_amount = EXCLUDED.extra_cash_amount,
    extra_card_amount = EXCLUDED.extra_card_amount,
    updated_at        = now()
RETURNING (xmax = 0)`

func (s *Store) Upsert(ctx context.Context, e model.Entry) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, upsertEntry,
		e.Key, string(e.Provider), e.TerminalID, model.DateOnly(e.Date), string(e.Method),
		e.Amount.StringFixed(2), e.Count, e.Returns.StringFixed(2), e.ExtraCash.StringFixed(2), e.ExtraCard.StringFixed(2),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ledger upsert %s: %w", e.Key, err)
	}
	return inserted, nil
}

// UpsertNetted runs the CASH adjustment and the card upsert in one
// transaction. Both commit together or not at all.
func (s *Store) UpsertNetted(ctx context.Context, card model.Entry, cashDelta decimal.Decimal) (bool, error) {
	cashKey := reconcile.MakeKey(card.Provider, card.TerminalID, card.Date, model.MethodCash)
	var inserted bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		inTx := &Store{db: tx}
		if !cashDelta.IsZero() {
			if err := inTx.adjust(ctx, cashKey, cashDelta); err != nil {
				return err
			}
		}
		var err error
		inserted, err = inTx.Upsert(ctx, card)
		return err
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) adjust(ctx context.Context, key string, delta decimal.Decimal) error {
	_, err := s.db.Exec(ctx,
		`UPDATE ledger_entries SET amount = amount - $2::numeric, updated_at = now() WHERE unique_key = $1`,
		key, delta.StringFixed(2))
	if err != nil {
		return fmt.Errorf("ledger adjust %s: %w", key, err)
	}
	return nil
}

const insertBatch = `
INSERT INTO import_batches (
    batch_id, provider, mode, file_name, file_hash,
    line_items, inserted, updated, duplicates, denied, errors, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// RecordBatch stores the audit row of one import.
func (s *Store) RecordBatch(ctx context.Context, b model.Batch) error {
	_, err := s.db.Exec(ctx, insertBatch,
		b.ID, string(b.Provider), b.Mode, b.FileName, b.FileHash,
		b.LineItems, b.Inserted, b.Updated, b.Duplicates, b.Denied, b.Errors, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record batch %s: %w", b.ID, err)
	}
	return nil
}

// RecentBatches lists the latest imports, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]model.Batch, error) {
	rows, err := s.db.Query(ctx, `
SELECT batch_id, provider, mode, file_name, file_hash,
       line_items, inserted, updated, duplicates, denied, errors, created_at
FROM import_batches
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []model.Batch
	for rows.Next() {
		var b model.Batch
		var provider string
		if err := rows.Scan(&b.ID, &provider, &b.Mode, &b.FileName, &b.FileHash,
			&b.LineItems, &b.Inserted, &b.Updated, &b.Duplicates, &b.Denied, &b.Errors, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Provider = model.Provider(provider)
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ reconcile.LedgerStore = (*Store)(nil)
