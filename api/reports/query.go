package reports

import (
	"context"
	"fmt"
	"strings"

	"CollectLedger/api/settlement/model"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const dailyBase = `
SELECT e.entry_date, b.id, b.name, r.id, r.name, e.provider, e.payment_method,
       SUM(e.item_count)::int, SUM(e.amount)
FROM ledger_entries e
JOIN terminals t ON t.external_id = e.terminal_id
JOIN registers r ON r.id = t.register_id
JOIN branches  b ON b.id = r.branch_id
WHERE 1=1`

const dailyGroup = `
GROUP BY e.entry_date, b.id, b.name, r.id, r.name, e.provider, e.payment_method
ORDER BY b.name, r.name, e.entry_date`

// dailyQuery appends one positional predicate per set filter field.
func dailyQuery(f Filter) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(dailyBase)
	args := []interface{}{}
	if !f.From.IsZero() {
		args = append(args, model.DateOnly(f.From))
		fmt.Fprintf(&sb, " AND e.entry_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, model.DateOnly(f.To))
		fmt.Fprintf(&sb, " AND e.entry_date <= $%d", len(args))
	}
	if f.BranchID > 0 {
		args = append(args, f.BranchID)
		fmt.Fprintf(&sb, " AND b.id = $%d", len(args))
	}
	sb.WriteString(dailyGroup)
	return sb.String(), args
}

// Daily returns the grouped ledger lines for the filter.
func (r *Repository) Daily(ctx context.Context, f Filter) ([]Line, error) {
	sql, args := dailyQuery(f)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var provider, method string
		if err := rows.Scan(&l.Date, &l.BranchID, &l.BranchName, &l.RegisterID, &l.RegisterName,
			&provider, &method, &l.Count, &l.Amount); err != nil {
			return nil, fmt.Errorf("daily report scan: %w", err)
		}
		l.Provider = model.Provider(provider)
		l.Method = model.PaymentMethod(method)
		out = append(out, l)
	}
	return out, rows.Err()
}
