package registry

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CollectLedger/api/constants"
	"CollectLedger/api/settlement/model"

	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestBuildTree(t *testing.T) {
	pct := decimal.NullDecimal{Decimal: decimal.RequireFromString("1.5"), Valid: true}
	rows := []treeRow{
		{BranchID: 1, BranchName: "Centro",
			RegisterID: sql.NullInt64{Int64: 10, Valid: true}, RegisterName: sql.NullString{String: "Caja 1", Valid: true},
			TerminalID: sql.NullInt64{Int64: 100, Valid: true}, Provider: sql.NullString{String: "SEAC", Valid: true},
			ExternalID: sql.NullString{String: "AB1234", Valid: true}, CommissionPct: pct},
		{BranchID: 1, BranchName: "Centro",
			RegisterID: sql.NullInt64{Int64: 10, Valid: true}, RegisterName: sql.NullString{String: "Caja 1", Valid: true},
			TerminalID: sql.NullInt64{Int64: 101, Valid: true}, Provider: sql.NullString{String: "PAGO_FACIL", Valid: true},
			ExternalID: sql.NullString{String: "A12345", Valid: true}},
		{BranchID: 1, BranchName: "Centro",
			RegisterID: sql.NullInt64{Int64: 11, Valid: true}, RegisterName: sql.NullString{String: "Caja 2", Valid: true}},
		{BranchID: 2, BranchName: "Norte"},
	}

	tree := buildTree(rows)
	if len(tree) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(tree))
	}
	centro := tree[0]
	if len(centro.Registers) != 2 || len(centro.Registers[0].Terminals) != 2 || len(centro.Registers[1].Terminals) != 0 {
		t.Fatalf("unexpected shape %+v", centro)
	}
	term := centro.Registers[0].Terminals[0]
	if term.Provider != model.ProviderSeac || term.RegisterID != 10 || !term.CommissionPct.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("terminal %+v", term)
	}
	if tree[1].Registers == nil || len(tree[1].Registers) != 0 {
		t.Fatalf("empty branch should carry an empty register list")
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	out, _ := json.Marshal(buildTree(nil))
	if string(out) != "[]" {
		t.Fatalf("empty tree marshals as %s", out)
	}
}

func TestValidatePayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload interface{}
		bad     []string
	}{
		{"branch ok", &BranchPayload{Name: "Centro"}, nil},
		{"branch empty", &BranchPayload{}, []string{"name:required"}},
		{"register no branch", &RegisterPayload{Name: "Caja"}, []string{"branch_id:required"}},
		{"terminal ok", &TerminalPayload{RegisterID: 1, Provider: model.ProviderSeac, ExternalID: "AB1234",
			CommissionPct: decimal.RequireFromString("2.5")}, nil},
		{"terminal bad provider", &TerminalPayload{RegisterID: 1, Provider: "RAPIPAGO", ExternalID: "AB1234"},
			[]string{"provider:oneof"}},
		{"terminal negative commission", &TerminalPayload{RegisterID: 1, Provider: model.ProviderPagoFacil, ExternalID: "A12345",
			CommissionFixed: decimal.NewFromInt(-1)}, []string{"commission_fixed:gte"}},
		{"terminal pct over 100", &TerminalPayload{RegisterID: 1, Provider: model.ProviderPagoFacil, ExternalID: "A12345",
			CommissionPct: decimal.NewFromInt(101)}, []string{"commission_pct:lte"}},
		{"terminal id with spaces", &TerminalPayload{RegisterID: 1, Provider: model.ProviderSeac, ExternalID: "AB 12"},
			[]string{"external_id:alphanum"}},
	}
	for _, tc := range cases {
		err := Validate(tc.payload)
		if len(tc.bad) == 0 {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s: expected failure", tc.name)
			continue
		}
		for _, want := range tc.bad {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("%s: %q does not mention %s", tc.name, err, want)
			}
		}
	}
}

func TestPqUserFriendlyMessage(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{&pq.Error{Code: "23505", Constraint: "terminals_external_id_key", Detail: "Key (external_id)=(AB1234) already exists."},
			http.StatusConflict, "Terminal AB1234 is already registered"},
		{&pq.Error{Code: "23505", Constraint: "branches_name_key"}, http.StatusConflict, constants.ErrDuplicateRecord},
		{&pq.Error{Code: "23503", Message: `update or delete on table "branches" violates foreign key constraint`},
			http.StatusConflict, constants.ErrStillLinked},
		{&pq.Error{Code: "23503", Message: `insert or update on table "registers" violates foreign key constraint`},
			http.StatusBadRequest, constants.ErrParentMissing},
		{&pq.Error{Code: "08006"}, http.StatusInternalServerError, constants.ErrConfigTreeFailed},
	}
	for _, tc := range cases {
		status, msg, ok := pqUserFriendlyMessage(tc.err)
		if !ok || status != tc.status || msg != tc.msg {
			t.Errorf("%v: got %d %q %v", tc.err, status, msg, ok)
		}
	}
	if _, _, ok := pqUserFriendlyMessage(errors.New("boom")); ok {
		t.Fatalf("plain error reported as pq error")
	}
}

// fakeRedis answers from a map using the go-redis result constructors.
type fakeRedis struct {
	data    map[string]string
	getErr  error
	deleted []string
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingRegistry struct {
	known map[string]model.Provider
	calls int
	err   error
}

func (c *countingRegistry) Exists(_ context.Context, p model.Provider, id string) (bool, error) {
	c.calls++
	return c.known[id] == p, c.err
}

func TestCachedRegistry(t *testing.T) {
	quiet, _ := test.NewNullLogger()
	backing := &countingRegistry{known: map[string]model.Provider{"AB1234": model.ProviderSeac}}
	rdb := &fakeRedis{data: map[string]string{}}
	cache := NewCachedRegistry(rdb, backing, time.Minute, quiet)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, err := cache.Exists(ctx, model.ProviderSeac, "AB1234"); err != nil || !ok {
			t.Fatalf("known terminal: %v %v", ok, err)
		}
		if ok, err := cache.Exists(ctx, model.ProviderSeac, "ZZ9999"); err != nil || ok {
			t.Fatalf("unknown terminal: %v %v", ok, err)
		}
	}
	if backing.calls != 2 {
		t.Fatalf("expected 2 backing lookups, got %d", backing.calls)
	}
	if ok, _ := cache.Exists(ctx, model.ProviderPagoFacil, "AB1234"); ok {
		t.Fatalf("terminal accepted under the wrong provider")
	}
	if rdb.data[cacheKeyPrefix+"SEAC:AB1234"] != "1" || rdb.data[cacheKeyPrefix+"PAGO_FACIL:AB1234"] != "0" {
		t.Fatalf("cache contents %v", rdb.data)
	}

	backing.known["ZZ9999"] = model.ProviderSeac
	if err := cache.Invalidate(ctx, "zz9999", ""); err != nil {
		t.Fatal(err)
	}
	if len(rdb.deleted) != len(model.Providers) || rdb.deleted[1] != cacheKeyPrefix+"SEAC:ZZ9999" {
		t.Fatalf("deleted %v", rdb.deleted)
	}
	if ok, _ := cache.Exists(ctx, model.ProviderSeac, "ZZ9999"); !ok {
		t.Fatalf("invalidated terminal still reported unknown")
	}
}

func TestCachedRegistryFallsBackWhenRedisDown(t *testing.T) {
	quiet, _ := test.NewNullLogger()
	backing := &countingRegistry{known: map[string]model.Provider{"AB1234": model.ProviderSeac}}
	rdb := &fakeRedis{data: map[string]string{}, getErr: errors.New("connection refused")}
	cache := NewCachedRegistry(rdb, backing, 0, quiet)

	if ok, err := cache.Exists(context.Background(), model.ProviderSeac, "AB1234"); err != nil || !ok {
		t.Fatalf("fallback lookup: %v %v", ok, err)
	}

	backing.err = errors.New("db down")
	if _, err := cache.Exists(context.Background(), model.ProviderSeac, "AB1234"); err == nil {
		t.Fatalf("backing error swallowed")
	}
}

type memConfig struct {
	branches  map[int64]BranchPayload
	terminals map[int64]TerminalPayload
	deleteErr error
	nextID    int64
}

func newMemConfig() *memConfig {
	return &memConfig{branches: map[int64]BranchPayload{}, terminals: map[int64]TerminalPayload{}}
}

func (m *memConfig) Tree(context.Context) ([]Branch, error) {
	out := []Branch{}
	for id, b := range m.branches {
		out = append(out, Branch{ID: id, Name: b.Name, Registers: []Register{}})
	}
	return out, nil
}

func (m *memConfig) CreateBranch(_ context.Context, p BranchPayload) (int64, error) {
	m.nextID++
	m.branches[m.nextID] = p
	return m.nextID, nil
}

func (m *memConfig) UpdateBranch(_ context.Context, id int64, p BranchPayload) error {
	if _, ok := m.branches[id]; !ok {
		return ErrNotFound
	}
	m.branches[id] = p
	return nil
}

func (m *memConfig) DeleteBranch(_ context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.branches, id)
	return nil
}

func (m *memConfig) CreateRegister(context.Context, RegisterPayload) (int64, error) { return 0, nil }
func (m *memConfig) UpdateRegister(context.Context, int64, RegisterPayload) error   { return nil }
func (m *memConfig) DeleteRegister(context.Context, int64) error                    { return nil }

func (m *memConfig) CreateTerminal(_ context.Context, p TerminalPayload) (int64, error) {
	m.nextID++
	m.terminals[m.nextID] = p
	return m.nextID, nil
}

func (m *memConfig) UpdateTerminal(_ context.Context, id int64, p TerminalPayload) (string, error) {
	old, ok := m.terminals[id]
	if !ok {
		return "", ErrNotFound
	}
	m.terminals[id] = p
	return old.ExternalID, nil
}

func (m *memConfig) DeleteTerminal(_ context.Context, id int64) (string, error) {
	old, ok := m.terminals[id]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.terminals, id)
	return old.ExternalID, nil
}

type recordingInvalidator struct{ ids []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...string) error {
	r.ids = append(r.ids, ids...)
	return nil
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestConfigHandlers(t *testing.T) {
	store := newMemConfig()
	inv := &recordingInvalidator{}
	r := mux.NewRouter()
	(&Handlers{Store: store, Cache: inv}).Register(r)

	if rec := do(r, http.MethodPost, "/config/sucursales", `{"name":"  Centro "}`); rec.Code != http.StatusCreated {
		t.Fatalf("create branch: %d %s", rec.Code, rec.Body.String())
	}
	if store.branches[1].Name != "Centro" {
		t.Fatalf("name not trimmed: %q", store.branches[1].Name)
	}
	if rec := do(r, http.MethodPost, "/config/branches", `{"name":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name accepted: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/config/branches", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json accepted: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/config/widgets", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kind: %d", rec.Code)
	}

	body := `{"register_id":3,"provider":"seac","external_id":"ab1234","commission_pct":"1.25"}`
	if rec := do(r, http.MethodPost, "/config/terminals", body); rec.Code != http.StatusCreated {
		t.Fatalf("create terminal: %d %s", rec.Code, rec.Body.String())
	}
	if got := store.terminals[2]; got.ExternalID != "AB1234" || got.Provider != model.ProviderSeac {
		t.Fatalf("terminal not normalized: %+v", got)
	}

	body = `{"register_id":3,"provider":"SEAC","external_id":"CD5678"}`
	if rec := do(r, http.MethodPut, "/config/terminals/2", body); rec.Code != http.StatusOK {
		t.Fatalf("update terminal: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodDelete, "/config/terminals/2", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete terminal: %d", rec.Code)
	}
	want := []string{"AB1234", "AB1234", "CD5678", "CD5678"}
	if strings.Join(inv.ids, ",") != strings.Join(want, ",") {
		t.Fatalf("invalidated %v, want %v", inv.ids, want)
	}

	if rec := do(r, http.MethodPut, "/config/branches/99", `{"name":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing branch update: %d", rec.Code)
	}

	store.deleteErr = &pq.Error{Code: "23503", Message: `update or delete on table "branches" violates foreign key constraint`}
	rec := do(r, http.MethodDelete, "/config/branches/1", "")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), constants.ErrStillLinked) {
		t.Fatalf("linked delete: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/config/tree", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Centro") {
		t.Fatalf("tree: %d %s", rec.Code, rec.Body.String())
	}
}
