package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the collection network that produced a settlement file.
type Provider string

const (
	ProviderPagoFacil    Provider = "PAGO_FACIL"
	ProviderSeac         Provider = "SEAC"
	ProviderCobroExpress Provider = "COBRO_EXPRESS"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderPagoFacil, ProviderSeac, ProviderCobroExpress}

// KeyPrefix is the short code used when building ledger keys.
func (p Provider) KeyPrefix() string {
	switch p {
	case ProviderPagoFacil:
		return "PF"
	case ProviderSeac:
		return "SEAC"
	case ProviderCobroExpress:
		return "CE"
	}
	return string(p)
}

// DisplayName is the label the branch staff know the provider by.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderPagoFacil:
		return "PAGO FÁCIL"
	case ProviderSeac:
		return "SEAC"
	case ProviderCobroExpress:
		return "COBRO EXPRESS"
	}
	return string(p)
}

// NetsCardAgainstCash reports whether CARD settlements of this provider are
// published as a deduction of the same terminal-day CASH total.
func (p Provider) NetsCardAgainstCash() bool {
	return p == ProviderSeac
}

// PaymentMethod is the settlement channel of an amount.
type PaymentMethod string

const (
	MethodCash PaymentMethod = "CASH"
	MethodCard PaymentMethod = "CARD"
)

// Rank orders CASH before CARD.
func (m PaymentMethod) Rank() int {
	if m == MethodCard {
		return 1
	}
	return 0
}

// LineItem is one normalized row produced by a provider parser. It only
// lives for the duration of an import request.
type LineItem struct {
	TerminalID string
	Date       time.Time
	Amount     decimal.Decimal
	Method     PaymentMethod
	Count      int
	Returns    decimal.Decimal
	ExtraCash  decimal.Decimal
	ExtraCard  decimal.Decimal
	Raw        map[string]string
}

// Aggregate is the per terminal/date/method sum of one uploaded file.
type Aggregate struct {
	TerminalID string
	Date       time.Time
	Method     PaymentMethod
	Total      decimal.Decimal
	Count      int
	Returns    decimal.Decimal
	ExtraCash  decimal.Decimal
	ExtraCard  decimal.Decimal
}

// Entry is the persisted ledger row for one unique key.
type Entry struct {
	Key        string          `json:"unique_key"`
	Provider   Provider        `json:"provider"`
	TerminalID string          `json:"terminal_id"`
	Date       time.Time       `json:"date"`
	Method     PaymentMethod   `json:"payment_method"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"item_count"`
	Returns    decimal.Decimal `json:"returns_amount"`
	ExtraCash  decimal.Decimal `json:"extra_cash_amount"`
	ExtraCard  decimal.Decimal `json:"extra_card_amount"`
}

// Status tags the outcome of reconciling one aggregate.
type Status string

const (
	StatusOK        Status = "OK"
	StatusDuplicate Status = "DUPLICATE"
	StatusDenied    Status = "DENIED"
	StatusError     Status = "ERROR"
)

// Result is the per-aggregate line of an import report.
type Result struct {
	Status     Status          `json:"status"`
	Key        string          `json:"key,omitempty"`
	TerminalID string          `json:"terminal_id"`
	Date       string          `json:"date"`
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Inserted   bool            `json:"-"`
	Message    string          `json:"message,omitempty"`
}

// Summary is the response of one import request.
type Summary struct {
	BatchID           string   `json:"batch_id,omitempty"`
	Provider          Provider `json:"provider"`
	Mode              string   `json:"mode"`
	FileName          string   `json:"file_name,omitempty"`
	LineItems         int      `json:"line_items"`
	Inserted          int      `json:"inserted"`
	Updated           int      `json:"updated"`
	Duplicates        int      `json:"duplicates"`
	Denied            int      `json:"denied"`
	Errors            int      `json:"errors"`
	DeniedOrDuplicate int      `json:"denied_or_duplicate"`
	Details           []Result `json:"details"`
}

// Tally folds a result into the counters.
func (s *Summary) Tally(r Result) {
	switch r.Status {
	case StatusOK:
		if r.Inserted {
			s.Inserted++
		} else {
			s.Updated++
		}
	case StatusDuplicate:
		s.Duplicates++
		s.DeniedOrDuplicate++
	case StatusDenied:
		s.Denied++
		s.DeniedOrDuplicate++
	case StatusError:
		s.Errors++
	}
	s.Details = append(s.Details, r)
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CleanTerminal is the canonical spelling of a provider terminal id.
func CleanTerminal(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Batch is the audit record of one import request.
type Batch struct {
	ID         string    `json:"batch_id"`
	Provider   Provider  `json:"provider"`
	Mode       string    `json:"mode"`
	FileName   string    `json:"file_name"`
	FileHash   string    `json:"file_hash"`
	LineItems  int       `json:"line_items"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Duplicates int       `json:"duplicates"`
	Denied     int       `json:"denied"`
	Errors     int       `json:"errors"`
	CreatedAt  time.Time `json:"created_at"`
}
