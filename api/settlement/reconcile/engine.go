package reconcile

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"CollectLedger/api/settlement/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const resultDateLayout = "2006-01-02"

// tolerance below which two amounts are considered the same figure
var tolerance = decimal.New(1, -2)

// Engine decides insert, update or duplicate for each aggregate of an import
// and writes the outcome to the ledger.
type Engine struct {
	store    LedgerStore
	registry TerminalRegistry
	log      logrus.FieldLogger
	workers  int
}

type Option func(*Engine)

// WithWorkers reconciles independent terminal-days concurrently. All methods
// of one provider, terminal and date stay on the same worker.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(store LedgerStore, registry TerminalRegistry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		log:      logrus.StandardLogger(),
		workers:  1,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile processes aggs in order and returns one result per aggregate.
// Persistence failures become ERROR results; the remaining aggregates are
// still processed.
func (e *Engine) Reconcile(ctx context.Context, p model.Provider, aggs []model.Aggregate) []model.Result {
	results := make([]model.Result, len(aggs))
	v := NewValidator(e.registry)

	if e.workers <= 1 || len(aggs) < 2 {
		for i, agg := range aggs {
			results[i] = e.reconcileOne(ctx, p, v, agg)
		}
		return results
	}

	lanes := make([][]int, e.workers)
	for i, agg := range aggs {
		w := laneFor(p, agg, e.workers)
		lanes[w] = append(lanes[w], i)
	}
	var wg sync.WaitGroup
	for _, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		wg.Add(1)
		go func(idx []int) {
			defer wg.Done()
			for _, i := range idx {
				results[i] = e.reconcileOne(ctx, p, v, aggs[i])
			}
		}(lane)
	}
	wg.Wait()
	return results
}

func laneFor(p model.Provider, agg model.Aggregate, n int) int {
	h := fnv.New32a()
	h.Write([]byte(string(p)))
	h.Write([]byte{0})
	h.Write([]byte(agg.TerminalID))
	h.Write([]byte(agg.Date.Format(keyDateLayout)))
	return int(h.Sum32() % uint32(n))
}

func (e *Engine) reconcileOne(ctx context.Context, p model.Provider, v *Validator, agg model.Aggregate) model.Result {
	key := MakeKey(p, agg.TerminalID, agg.Date, agg.Method)
	res := model.Result{
		Key:        key,
		TerminalID: agg.TerminalID,
		Date:       agg.Date.Format(resultDateLayout),
		Method:     agg.Method,
		Amount:     agg.Total,
	}
	entry := e.log.WithField("key", key)

	if err := ctx.Err(); err != nil {
		return failed(res, err)
	}

	known, err := v.Known(ctx, p, agg.TerminalID)
	if err != nil {
		entry.WithError(err).Error("[IMPORT] terminal lookup failed")
		return failed(res, fmt.Errorf("terminal lookup: %w", err))
	}
	if !known {
		res.Status = model.StatusDenied
		res.Message = fmt.Sprintf("terminal %s is not registered for %s", agg.TerminalID, p.DisplayName())
		return res
	}

	target := model.Entry{
		Key:        key,
		Provider:   p,
		TerminalID: agg.TerminalID,
		Date:       agg.Date,
		Method:     agg.Method,
		Amount:     agg.Total,
		Count:      agg.Count,
		Returns:    agg.Returns,
		ExtraCash:  agg.ExtraCash,
		ExtraCard:  agg.ExtraCard,
	}

	netting := p.NetsCardAgainstCash()
	if netting && agg.Method == model.MethodCash {
		card, ok, err := e.store.Get(ctx, MakeKey(p, agg.TerminalID, agg.Date, model.MethodCard))
		if err != nil {
			entry.WithError(err).Error("[IMPORT] card sibling lookup failed")
			return failed(res, err)
		}
		if ok {
			target.Amount = target.Amount.Sub(card.Amount)
			res.Message = fmt.Sprintf("net of card %s", card.Amount.StringFixed(2))
		}
	}

	existing, found, err := e.store.Get(ctx, key)
	if err != nil {
		entry.WithError(err).Error("[IMPORT] ledger read failed")
		return failed(res, err)
	}
	if found && sameFigures(existing, target) {
		res.Status = model.StatusDuplicate
		return res
	}

	var inserted bool
	if netting && agg.Method == model.MethodCard {
		delta := target.Amount
		if found {
			delta = target.Amount.Sub(existing.Amount)
		}
		inserted, err = e.store.UpsertNetted(ctx, target, delta)
	} else {
		inserted, err = e.store.Upsert(ctx, target)
	}
	if err != nil {
		entry.WithError(err).Error("[IMPORT] ledger write failed")
		return failed(res, err)
	}
	res.Status = model.StatusOK
	res.Inserted = inserted
	entry.WithFields(logrus.Fields{"inserted": inserted, "amount": target.Amount.StringFixed(2)}).Debug("[IMPORT] ledger entry written")
	return res
}

func failed(res model.Result, err error) model.Result {
	res.Status = model.StatusError
	res.Message = err.Error()
	return res
}

func sameFigures(a, b model.Entry) bool {
	return closeEnough(a.Amount, b.Amount) &&
		a.Count == b.Count &&
		closeEnough(a.Returns, b.Returns) &&
		closeEnough(a.ExtraCash, b.ExtraCash) &&
		closeEnough(a.ExtraCard, b.ExtraCard)
}

func closeEnough(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}
