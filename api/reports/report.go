package reports

import (
	"sort"
	"time"

	"CollectLedger/api/settlement/model"

	"github.com/shopspring/decimal"
)

// Filter narrows the daily report. Zero values mean no bound.
type Filter struct {
	From     time.Time
	To       time.Time
	BranchID int64
}

// Line is one grouped row as the database returns it.
type Line struct {
	Date         time.Time
	BranchID     int64
	BranchName   string
	RegisterID   int64
	RegisterName string
	Provider     model.Provider
	Method       model.PaymentMethod
	Count        int
	Amount       decimal.Decimal
}

// Totals are the counts and amounts of one provider in one report row.
type Totals struct {
	CashCount  int             `json:"cash_count"`
	CashAmount decimal.Decimal `json:"cash_amount"`
	CardCount  int             `json:"card_count"`
	CardAmount decimal.Decimal `json:"card_amount"`
}

func (t *Totals) add(method model.PaymentMethod, count int, amount decimal.Decimal) {
	if method == model.MethodCard {
		t.CardCount += count
		t.CardAmount = t.CardAmount.Add(amount)
		return
	}
	t.CashCount += count
	t.CashAmount = t.CashAmount.Add(amount)
}

// Row is one date/branch/register line of the daily report with a column
// group per provider.
type Row struct {
	Date         string                    `json:"date"`
	BranchID     int64                     `json:"branch_id"`
	BranchName   string                    `json:"branch_name"`
	RegisterID   int64                     `json:"register_id"`
	RegisterName string                    `json:"register_name"`
	Providers    map[model.Provider]Totals `json:"providers"`
	Total        decimal.Decimal           `json:"total"`
}

type rowKey struct {
	date       string
	registerID int64
}

// Pivot folds grouped lines into report rows. Every row carries all known
// providers so the columns line up. Rows are ordered by branch name, register
// name, then date.
func Pivot(lines []Line) []Row {
	index := map[rowKey]int{}
	rows := []Row{}
	for _, l := range lines {
		k := rowKey{date: l.Date.Format("2006-01-02"), registerID: l.RegisterID}
		i, ok := index[k]
		if !ok {
			row := Row{
				Date:         k.date,
				BranchID:     l.BranchID,
				BranchName:   l.BranchName,
				RegisterID:   l.RegisterID,
				RegisterName: l.RegisterName,
				Providers:    make(map[model.Provider]Totals, len(model.Providers)),
			}
			for _, p := range model.Providers {
				row.Providers[p] = Totals{}
			}
			rows = append(rows, row)
			i = len(rows) - 1
			index[k] = i
		}
		t := rows[i].Providers[l.Provider]
		t.add(l.Method, l.Count, l.Amount)
		rows[i].Providers[l.Provider] = t
		rows[i].Total = rows[i].Total.Add(l.Amount)
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if ra.BranchName != rb.BranchName {
			return ra.BranchName < rb.BranchName
		}
		if ra.RegisterName != rb.RegisterName {
			return ra.RegisterName < rb.RegisterName
		}
		if ra.RegisterID != rb.RegisterID {
			return ra.RegisterID < rb.RegisterID
		}
		return ra.Date < rb.Date
	})
	return rows
}
