package reconcile

import (
	"sort"
	"time"

	"CollectLedger/api/settlement/model"
)

type groupKey struct {
	terminal string
	date     time.Time
	method   model.PaymentMethod
}

// Consolidate sums line items per terminal, date and method. The result is
// sorted by terminal, then date, then CASH before CARD.
func Consolidate(items []model.LineItem) []model.Aggregate {
	index := make(map[groupKey]int, len(items))
	var out []model.Aggregate
	for _, it := range items {
		k := groupKey{
			terminal: model.CleanTerminal(it.TerminalID),
			date:     model.DateOnly(it.Date),
			method:   it.Method,
		}
		if k.method == "" {
			k.method = model.MethodCash
		}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, model.Aggregate{TerminalID: k.terminal, Date: k.date, Method: k.method})
		}
		agg := &out[i]
		agg.Total = agg.Total.Add(it.Amount)
		agg.Count += it.Count
		agg.Returns = agg.Returns.Add(it.Returns)
		agg.ExtraCash = agg.ExtraCash.Add(it.ExtraCash)
		agg.ExtraCard = agg.ExtraCard.Add(it.ExtraCard)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TerminalID != b.TerminalID {
			return a.TerminalID < b.TerminalID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Method.Rank() < b.Method.Rank()
	})
	return out
}
