package parsers

import (
	"strings"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/normalize"
)

const (
	ModeSeacSales Mode = "sales"
	ModeSeacDebit Mode = "debit"
	// ModeSeacReturns is accepted as a spelling of ModeSeacDebit.
	ModeSeacReturns Mode = "returns"
)

const (
	seacSeparator      = ";"
	seacTerminalLength = 6
)

// seacLayout gives the column index of each field in one SEAC export.
type seacLayout struct {
	date, terminal, amount int
	method                 model.PaymentMethod
}

var seacLayouts = map[Mode]seacLayout{
	// date;terminal;voucher;amount
	ModeSeacSales: {date: 0, terminal: 1, amount: 3, method: model.MethodCash},
	// terminal;date;batch;coupon;card;amount
	ModeSeacDebit: {date: 1, terminal: 0, amount: 5, method: model.MethodCard},
}

// Seac reads the semicolon separated sales and debit-card exports.
type Seac struct{}

func (Seac) Provider() model.Provider { return model.ProviderSeac }

func (Seac) Modes() []Mode { return []Mode{ModeSeacSales, ModeSeacDebit} }

func (Seac) canonicalMode(m Mode) Mode {
	if m == ModeSeacReturns {
		return ModeSeacDebit
	}
	return m
}

func (s Seac) Parse(data []byte, opts Options) ([]model.LineItem, error) {
	mode, err := resolveMode(s, opts)
	if err != nil {
		return nil, err
	}
	layout := seacLayouts[mode]
	last := max(layout.date, layout.terminal, layout.amount)

	var items []model.LineItem
	for _, line := range textLines(data) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, seacSeparator)
		if len(cols) <= last {
			continue
		}
		terminal := strings.TrimSpace(cols[layout.terminal])
		if len([]rune(terminal)) != seacTerminalLength {
			continue
		}
		amount, ok := normalize.ParseAmount(cols[layout.amount])
		if !ok {
			continue
		}
		date, ok := normalize.NormalizeDate(cols[layout.date])
		if !ok {
			continue
		}
		items = append(items, model.LineItem{
			TerminalID: model.CleanTerminal(terminal),
			Date:       date,
			Amount:     amount,
			Method:     layout.method,
			Count:      1,
			Raw:        map[string]string{"line": line},
		})
	}
	return items, nil
}
