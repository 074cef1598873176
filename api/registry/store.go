package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"CollectLedger/api/constants"
	"CollectLedger/api/settlement/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("registry: record not found")

// Store is the branch/register/terminal configuration tree on database/sql
// with the lib/pq driver.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Exists reports whether a terminal with this external id is registered
// under provider p.
func (s *Store) Exists(ctx context.Context, p model.Provider, externalID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM terminals WHERE external_id = $1 AND provider = $2)`,
		model.CleanTerminal(externalID), string(p)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("terminal lookup %s: %w", externalID, err)
	}
	return ok, nil
}

type treeRow struct {
	BranchID        int64
	BranchName      string
	RegisterID      sql.NullInt64
	RegisterName    sql.NullString
	TerminalID      sql.NullInt64
	Provider        sql.NullString
	ExternalID      sql.NullString
	CommissionPct   decimal.NullDecimal
	CommissionFixed decimal.NullDecimal
}

func (s *Store) Tree(ctx context.Context) ([]Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.name,
		       r.id, r.name,
		       t.id, t.provider, t.external_id, t.commission_pct, t.commission_fixed
		FROM branches b
		LEFT JOIN registers r ON r.branch_id = b.id
		LEFT JOIN terminals t ON t.register_id = r.id
		ORDER BY b.name, b.id, r.name, r.id, t.external_id`)
	if err != nil {
		return nil, fmt.Errorf("configuration tree: %w", err)
	}
	defer rows.Close()

	var flat []treeRow
	for rows.Next() {
		var tr treeRow
		if err := rows.Scan(&tr.BranchID, &tr.BranchName,
			&tr.RegisterID, &tr.RegisterName,
			&tr.TerminalID, &tr.Provider, &tr.ExternalID, &tr.CommissionPct, &tr.CommissionFixed); err != nil {
			return nil, fmt.Errorf("configuration tree scan: %w", err)
		}
		flat = append(flat, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildTree(flat), nil
}

// buildTree folds the LEFT JOIN rows into the nested tree, keeping the query
// order. Branches without registers and registers without terminals survive
// with empty slices.
func buildTree(rows []treeRow) []Branch {
	tree := []Branch{}
	branchAt := map[int64]int{}
	registerAt := map[int64][2]int{}
	for _, r := range rows {
		bi, ok := branchAt[r.BranchID]
		if !ok {
			tree = append(tree, Branch{ID: r.BranchID, Name: r.BranchName, Registers: []Register{}})
			bi = len(tree) - 1
			branchAt[r.BranchID] = bi
		}
		if !r.RegisterID.Valid {
			continue
		}
		pos, ok := registerAt[r.RegisterID.Int64]
		if !ok {
			tree[bi].Registers = append(tree[bi].Registers, Register{
				ID:        r.RegisterID.Int64,
				BranchID:  r.BranchID,
				Name:      r.RegisterName.String,
				Terminals: []Terminal{},
			})
			pos = [2]int{bi, len(tree[bi].Registers) - 1}
			registerAt[r.RegisterID.Int64] = pos
		}
		if !r.TerminalID.Valid {
			continue
		}
		reg := &tree[pos[0]].Registers[pos[1]]
		reg.Terminals = append(reg.Terminals, Terminal{
			ID:              r.TerminalID.Int64,
			RegisterID:      reg.ID,
			Provider:        model.Provider(r.Provider.String),
			ExternalID:      r.ExternalID.String,
			CommissionPct:   r.CommissionPct.Decimal,
			CommissionFixed: r.CommissionFixed.Decimal,
		})
	}
	return tree
}

func (s *Store) CreateBranch(ctx context.Context, p BranchPayload) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO branches (name) VALUES ($1) RETURNING id`, p.Name).Scan(&id)
	return id, err
}

func (s *Store) UpdateBranch(ctx context.Context, id int64, p BranchPayload) error {
	res, err := s.db.ExecContext(ctx, `UPDATE branches SET name = $1 WHERE id = $2`, p.Name, id)
	return affected(res, err)
}

func (s *Store) DeleteBranch(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, id)
	return affected(res, err)
}

func (s *Store) CreateRegister(ctx context.Context, p RegisterPayload) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO registers (branch_id, name) VALUES ($1, $2) RETURNING id`, p.BranchID, p.Name).Scan(&id)
	return id, err
}

func (s *Store) UpdateRegister(ctx context.Context, id int64, p RegisterPayload) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registers SET branch_id = $1, name = $2 WHERE id = $3`, p.BranchID, p.Name, id)
	return affected(res, err)
}

func (s *Store) DeleteRegister(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registers WHERE id = $1`, id)
	return affected(res, err)
}

func (s *Store) CreateTerminal(ctx context.Context, p TerminalPayload) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO terminals (register_id, provider, external_id, commission_pct, commission_fixed)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.RegisterID, string(p.Provider), p.ExternalID, p.CommissionPct, p.CommissionFixed).Scan(&id)
	return id, err
}

// UpdateTerminal returns the external id the terminal had before the update.
func (s *Store) UpdateTerminal(ctx context.Context, id int64, p TerminalPayload) (string, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		WITH old AS (SELECT external_id FROM terminals WHERE id = $6)
		UPDATE terminals
		SET register_id = $1, provider = $2, external_id = $3, commission_pct = $4, commission_fixed = $5
		WHERE id = $6
		RETURNING (SELECT external_id FROM old)`,
		p.RegisterID, string(p.Provider), p.ExternalID, p.CommissionPct, p.CommissionFixed, id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return previous, err
}

// DeleteTerminal returns the external id of the removed terminal.
func (s *Store) DeleteTerminal(ctx context.Context, id int64) (string, error) {
	var externalID string
	err := s.db.QueryRowContext(ctx, `DELETE FROM terminals WHERE id = $1 RETURNING external_id`, id).Scan(&externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return externalID, err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// pqUserFriendlyMessage turns constraint violations into something the
// back-office user can act on. ok is false for errors that are not pq errors.
func pqUserFriendlyMessage(err error) (status int, msg string, ok bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return 0, "", false
	}
	switch pqErr.Code {
	case "23505":
		switch pqErr.Constraint {
		case "terminals_external_id_key", "uniq_terminal_external_id":
			return http.StatusConflict, fmt.Sprintf(constants.ErrDuplicateTerminal, detailValue(pqErr.Detail)), true
		default:
			return http.StatusConflict, constants.ErrDuplicateRecord, true
		}
	case "23503":
		// Postgres words FK failures on DELETE as "update or delete on table ...".
		if strings.Contains(pqErr.Message, "delete") {
			return http.StatusConflict, constants.ErrStillLinked, true
		}
		return http.StatusBadRequest, constants.ErrParentMissing, true
	case "23514", "22003":
		return http.StatusBadRequest, fmt.Sprintf(constants.ErrValidationFailed, pqErr.Message), true
	}
	return http.StatusInternalServerError, constants.ErrConfigTreeFailed, true
}

// detailValue pulls "A12345" out of `Key (external_id)=(A12345) already exists.`
func detailValue(detail string) string {
	end := strings.LastIndex(detail, ")")
	if end < 0 {
		return ""
	}
	start := strings.LastIndex(detail[:end], "(")
	if start < 0 {
		return ""
	}
	return detail[start+1 : end]
}
