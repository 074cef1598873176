package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CollectLedger/api/settlement/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]model.Entry
	failKey string
	upserts int
	adjusts []decimal.Decimal
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]model.Entry)}
}

func (s *memStore) Get(_ context.Context, key string) (model.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *memStore) Upsert(_ context.Context, e model.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Key == s.failKey {
		return false, errors.New("connection reset")
	}
	_, exists := s.entries[e.Key]
	s.entries[e.Key] = e
	s.upserts++
	return !exists, nil
}

func (s *memStore) UpsertNetted(_ context.Context, card model.Entry, cashDelta decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if card.Key == s.failKey {
		return false, errors.New("connection reset")
	}
	s.adjusts = append(s.adjusts, cashDelta)
	cashKey := MakeKey(card.Provider, card.TerminalID, card.Date, model.MethodCash)
	if e, ok := s.entries[cashKey]; ok {
		e.Amount = e.Amount.Sub(cashDelta)
		s.entries[cashKey] = e
	}
	_, exists := s.entries[card.Key]
	s.entries[card.Key] = card
	s.upserts++
	return !exists, nil
}

func (s *memStore) amount(key string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].Amount
}

type staticRegistry struct {
	mu      sync.Mutex
	ids     map[string]bool
	err     error
	lookups int
}

// registryOf registers the ids for every provider.
func registryOf(ids ...string) *staticRegistry {
	r := &staticRegistry{ids: map[string]bool{}}
	for _, p := range model.Providers {
		r.add(p, ids...)
	}
	return r
}

func (r *staticRegistry) add(p model.Provider, ids ...string) *staticRegistry {
	for _, id := range ids {
		r.ids[string(p)+":"+id] = true
	}
	return r
}

func (r *staticRegistry) Exists(_ context.Context, p model.Provider, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.err != nil {
		return false, r.err
	}
	return r.ids[string(p)+":"+id], nil
}

var march1 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(terminal, amount string, method model.PaymentMethod) model.LineItem {
	return model.LineItem{TerminalID: terminal, Date: march1, Amount: dec(amount), Method: method, Count: 1}
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func summarize(results []model.Result) model.Summary {
	var s model.Summary
	for _, r := range results {
		s.Tally(r)
	}
	return s
}

func TestMakeKey(t *testing.T) {
	got := MakeKey(model.ProviderSeac, " ab1234 ", march1, model.MethodCash)
	if got != "SEAC_AB1234_20240301_CASH" {
		t.Fatalf("got %s", got)
	}
	if got := MakeKey(model.ProviderPagoFacil, "A12345", march1, model.MethodCard); got != "PF_A12345_20240301_CARD" {
		t.Fatalf("got %s", got)
	}
	if got := MakeKey(model.ProviderCobroExpress, "ce1", march1, model.MethodCash); got != "CE_CE1_20240301_CASH" {
		t.Fatalf("got %s", got)
	}
}

func TestConsolidateIsOrderIndependent(t *testing.T) {
	a := []model.LineItem{
		item("ZZ0001", "5", model.MethodCard),
		item("AB1234", "100", model.MethodCash),
		item("ab1234", "50", model.MethodCash),
		item("AB1234", "30", model.MethodCard),
	}
	b := []model.LineItem{a[3], a[2], a[1], a[0]}

	ga, gb := Consolidate(a), Consolidate(b)
	if len(ga) != 3 || len(gb) != 3 {
		t.Fatalf("expected 3 aggregates, got %d and %d", len(ga), len(gb))
	}
	for i := range ga {
		if ga[i].TerminalID != gb[i].TerminalID || ga[i].Method != gb[i].Method || !ga[i].Total.Equal(gb[i].Total) {
			t.Fatalf("order dependent result at %d: %+v vs %+v", i, ga[i], gb[i])
		}
	}
	if ga[0].TerminalID != "AB1234" || ga[0].Method != model.MethodCash || ga[1].Method != model.MethodCard {
		t.Fatalf("unexpected ordering %+v", ga)
	}
	if !ga[0].Total.Equal(dec("150")) || ga[0].Count != 2 {
		t.Fatalf("cash aggregate %+v", ga[0])
	}
}

func TestConsolidateConservesTotals(t *testing.T) {
	items := []model.LineItem{
		item("T1", "10.10", model.MethodCash),
		item("T1", "0.20", model.MethodCash),
		item("T2", "3", model.MethodCard),
	}
	items[0].Returns = dec("1")
	items[2].ExtraCard = dec("0.5")
	var sum, aggSum decimal.Decimal
	count, aggCount := 0, 0
	for _, it := range items {
		sum = sum.Add(it.Amount)
		count += it.Count
	}
	aggs := Consolidate(items)
	for _, a := range aggs {
		aggSum = aggSum.Add(a.Total)
		aggCount += a.Count
	}
	if !sum.Equal(aggSum) || count != aggCount {
		t.Fatalf("totals not conserved: %s/%d vs %s/%d", sum, count, aggSum, aggCount)
	}
	if !aggs[0].Returns.Equal(dec("1")) || !aggs[1].ExtraCard.Equal(dec("0.5")) {
		t.Fatalf("extras lost: %+v", aggs)
	}
}

func TestValidatorMemoizes(t *testing.T) {
	reg := registryOf("AB1234")
	v := NewValidator(reg)
	for i := 0; i < 3; i++ {
		if ok, err := v.Known(context.Background(), model.ProviderSeac, "AB1234"); !ok || err != nil {
			t.Fatalf("known terminal rejected: %v", err)
		}
		if ok, _ := v.Known(context.Background(), model.ProviderSeac, "ZZ9999"); ok {
			t.Fatal("unknown terminal accepted")
		}
	}
	if reg.lookups != 2 {
		t.Fatalf("expected 2 registry lookups, got %d", reg.lookups)
	}
}

func TestReimportIsIdempotent(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234", "CD5678"), WithLogger(quietLogger()))
	aggs := Consolidate([]model.LineItem{
		item("AB1234", "100", model.MethodCash),
		item("CD5678", "40", model.MethodCash),
	})

	first := summarize(eng.Reconcile(context.Background(), model.ProviderPagoFacil, aggs))
	if first.Inserted != 2 || first.Duplicates != 0 {
		t.Fatalf("first import %+v", first)
	}
	second := summarize(eng.Reconcile(context.Background(), model.ProviderPagoFacil, aggs))
	if second.Inserted != 0 || second.Updated != 0 || second.Duplicates != 2 || second.DeniedOrDuplicate != 2 {
		t.Fatalf("second import %+v", second)
	}
	if store.upserts != 2 {
		t.Fatalf("duplicates must not write, upserts=%d", store.upserts)
	}
}

func TestChangedTotalUpdates(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234"), WithLogger(quietLogger()))
	ctx := context.Background()

	eng.Reconcile(ctx, model.ProviderCobroExpress, Consolidate([]model.LineItem{item("AB1234", "100", model.MethodCash)}))
	res := eng.Reconcile(ctx, model.ProviderCobroExpress, Consolidate([]model.LineItem{item("AB1234", "120", model.MethodCash)}))
	if res[0].Status != model.StatusOK || res[0].Inserted {
		t.Fatalf("expected update, got %+v", res[0])
	}
	if !store.amount("CE_AB1234_20240301_CASH").Equal(dec("120")) {
		t.Fatalf("amount not updated")
	}

	// differences under a cent are the same figure
	res = eng.Reconcile(ctx, model.ProviderCobroExpress, Consolidate([]model.LineItem{item("AB1234", "120.004", model.MethodCash)}))
	if res[0].Status != model.StatusDuplicate {
		t.Fatalf("expected duplicate within tolerance, got %s", res[0].Status)
	}
}

func TestUnknownTerminalDenied(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234"), WithLogger(quietLogger()))
	res := eng.Reconcile(context.Background(), model.ProviderSeac, Consolidate([]model.LineItem{
		item("AB1234", "10", model.MethodCash),
		item("ZZ9999", "10", model.MethodCash),
	}))
	s := summarize(res)
	if s.Inserted != 1 || s.Denied != 1 || s.DeniedOrDuplicate != 1 {
		t.Fatalf("summary %+v", s)
	}
	if res[1].Status != model.StatusDenied || res[1].Message == "" {
		t.Fatalf("denied result %+v", res[1])
	}
	if _, ok, _ := store.Get(context.Background(), "SEAC_ZZ9999_20240301_CASH"); ok {
		t.Fatal("denied aggregate was written")
	}
}

func TestRegistryFailureIsError(t *testing.T) {
	reg := registryOf()
	reg.err = errors.New("registry down")
	eng := NewEngine(newMemStore(), reg, WithLogger(quietLogger()))
	res := eng.Reconcile(context.Background(), model.ProviderSeac, Consolidate([]model.LineItem{item("AB1234", "10", model.MethodCash)}))
	if res[0].Status != model.StatusError {
		t.Fatalf("expected ERROR, got %s", res[0].Status)
	}
}

func TestPersistenceErrorDoesNotAbortBatch(t *testing.T) {
	store := newMemStore()
	store.failKey = "PF_AB1234_20240301_CASH"
	eng := NewEngine(store, registryOf("AB1234", "CD5678"), WithLogger(quietLogger()))
	res := eng.Reconcile(context.Background(), model.ProviderPagoFacil, Consolidate([]model.LineItem{
		item("AB1234", "10", model.MethodCash),
		item("CD5678", "20", model.MethodCash),
	}))
	s := summarize(res)
	if s.Errors != 1 || s.Inserted != 1 {
		t.Fatalf("summary %+v", s)
	}
}

func TestSeacCardNetting(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234"), WithLogger(quietLogger()))
	ctx := context.Background()
	cashKey := "SEAC_AB1234_20240301_CASH"
	cardKey := "SEAC_AB1234_20240301_CARD"
	sales := Consolidate([]model.LineItem{
		item("AB1234", "100.00", model.MethodCash),
		item("AB1234", "50.00", model.MethodCash),
	})
	debit := Consolidate([]model.LineItem{item("AB1234", "30.00", model.MethodCard)})

	res := eng.Reconcile(ctx, model.ProviderSeac, sales)
	if res[0].Status != model.StatusOK || !store.amount(cashKey).Equal(dec("150")) {
		t.Fatalf("sales import: %+v", res)
	}
	if store.entries[cashKey].Count != 2 {
		t.Fatalf("count %d", store.entries[cashKey].Count)
	}

	res = eng.Reconcile(ctx, model.ProviderSeac, debit)
	if res[0].Status != model.StatusOK {
		t.Fatalf("debit import: %+v", res)
	}
	if !store.amount(cashKey).Equal(dec("120")) || !store.amount(cardKey).Equal(dec("30")) {
		t.Fatalf("after debit cash=%s card=%s", store.amount(cashKey), store.amount(cardKey))
	}

	res = eng.Reconcile(ctx, model.ProviderSeac, debit)
	if res[0].Status != model.StatusDuplicate || !store.amount(cashKey).Equal(dec("120")) {
		t.Fatalf("debit reimport must not net twice: %+v cash=%s", res, store.amount(cashKey))
	}

	res = eng.Reconcile(ctx, model.ProviderSeac, sales)
	if res[0].Status != model.StatusDuplicate || !store.amount(cashKey).Equal(dec("120")) {
		t.Fatalf("sales reimport after debit: %+v cash=%s", res, store.amount(cashKey))
	}

	changed := Consolidate([]model.LineItem{item("AB1234", "40.00", model.MethodCard)})
	eng.Reconcile(ctx, model.ProviderSeac, changed)
	if !store.amount(cashKey).Equal(dec("110")) || !store.amount(cardKey).Equal(dec("40")) {
		t.Fatalf("changed debit cash=%s card=%s", store.amount(cashKey), store.amount(cardKey))
	}
}

func TestFailedCardWriteDoesNotNetTwice(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234"), WithLogger(quietLogger()))
	ctx := context.Background()
	cashKey := "SEAC_AB1234_20240301_CASH"
	cardKey := "SEAC_AB1234_20240301_CARD"
	debit := Consolidate([]model.LineItem{item("AB1234", "30.00", model.MethodCard)})

	eng.Reconcile(ctx, model.ProviderSeac, Consolidate([]model.LineItem{item("AB1234", "150.00", model.MethodCash)}))

	store.failKey = cardKey
	res := eng.Reconcile(ctx, model.ProviderSeac, debit)
	if res[0].Status != model.StatusError || !store.amount(cashKey).Equal(dec("150")) {
		t.Fatalf("failed debit import: %+v cash=%s", res[0], store.amount(cashKey))
	}

	store.failKey = ""
	res = eng.Reconcile(ctx, model.ProviderSeac, debit)
	if res[0].Status != model.StatusOK || !store.amount(cashKey).Equal(dec("120")) || !store.amount(cardKey).Equal(dec("30")) {
		t.Fatalf("retried debit import: %+v cash=%s card=%s", res[0], store.amount(cashKey), store.amount(cardKey))
	}
	res = eng.Reconcile(ctx, model.ProviderSeac, debit)
	if res[0].Status != model.StatusDuplicate || !store.amount(cashKey).Equal(dec("120")) {
		t.Fatalf("debit reimport: %+v cash=%s", res[0], store.amount(cashKey))
	}
}

func TestTerminalOfAnotherProviderDenied(t *testing.T) {
	store := newMemStore()
	reg := (&staticRegistry{ids: map[string]bool{}}).add(model.ProviderPagoFacil, "AB1234")
	eng := NewEngine(store, reg, WithLogger(quietLogger()))
	res := eng.Reconcile(context.Background(), model.ProviderSeac, Consolidate([]model.LineItem{item("AB1234", "10", model.MethodCash)}))
	if res[0].Status != model.StatusDenied {
		t.Fatalf("expected DENIED, got %+v", res[0])
	}
	res = eng.Reconcile(context.Background(), model.ProviderPagoFacil, Consolidate([]model.LineItem{item("AB1234", "10", model.MethodCash)}))
	if res[0].Status != model.StatusOK {
		t.Fatalf("expected OK, got %+v", res[0])
	}
}

func TestDebitBeforeSalesConverges(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("AB1234"), WithLogger(quietLogger()))
	ctx := context.Background()

	eng.Reconcile(ctx, model.ProviderSeac, Consolidate([]model.LineItem{item("AB1234", "30", model.MethodCard)}))
	eng.Reconcile(ctx, model.ProviderSeac, Consolidate([]model.LineItem{item("AB1234", "150", model.MethodCash)}))
	if !store.amount("SEAC_AB1234_20240301_CASH").Equal(dec("120")) {
		t.Fatalf("cash=%s", store.amount("SEAC_AB1234_20240301_CASH"))
	}
}

func TestNoNettingOutsideSeac(t *testing.T) {
	store := newMemStore()
	eng := NewEngine(store, registryOf("CE0001"), WithLogger(quietLogger()))
	eng.Reconcile(context.Background(), model.ProviderCobroExpress, Consolidate([]model.LineItem{
		item("CE0001", "100", model.MethodCash),
		item("CE0001", "30", model.MethodCard),
	}))
	if len(store.adjusts) != 0 || !store.amount("CE_CE0001_20240301_CASH").Equal(dec("100")) {
		t.Fatalf("unexpected netting %v", store.adjusts)
	}
}

func TestWorkersKeepOrderAndOutcome(t *testing.T) {
	var items []model.LineItem
	var ids []string
	for _, id := range []string{"AA0001", "AA0002", "AA0003", "AA0004", "AA0005", "AA0006"} {
		ids = append(ids, id)
		items = append(items, item(id, "100", model.MethodCash), item(id, "25", model.MethodCard))
	}
	aggs := Consolidate(items)

	seq := newMemStore()
	NewEngine(seq, registryOf(ids...), WithLogger(quietLogger())).Reconcile(context.Background(), model.ProviderSeac, aggs)

	par := newMemStore()
	res := NewEngine(par, registryOf(ids...), WithWorkers(4), WithLogger(quietLogger())).Reconcile(context.Background(), model.ProviderSeac, aggs)

	for i, r := range res {
		if r.Key != MakeKey(model.ProviderSeac, aggs[i].TerminalID, aggs[i].Date, aggs[i].Method) {
			t.Fatalf("result %d out of order: %s", i, r.Key)
		}
	}
	for key, e := range seq.entries {
		if !par.amount(key).Equal(e.Amount) {
			t.Fatalf("%s: sequential %s, parallel %s", key, e.Amount, par.amount(key))
		}
	}
}
