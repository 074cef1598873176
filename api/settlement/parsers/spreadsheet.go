package parsers

import (
	"strconv"
	"strings"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/normalize"

	"github.com/shopspring/decimal"
)

const (
	ModeCobroExpressDaily    Mode = "daily"
	ModeCobroExpressDetailed Mode = "detailed"
)

// header keywords, already folded
var cobroHeaderKeywords = []string{"terminal", "importe", "monto"}

var cobroCardMarkers = []string{"tarj", "debito", "credito", "card", "pos"}

var cobroExpressFields = normalize.FieldTable{
	normalize.FieldTerminal:  {"terminal", "nro terminal", "id terminal", "codigo terminal"},
	normalize.FieldDate:      {"fecha", "fecha cobro", "fecha de pago", "fecha operacion"},
	normalize.FieldAmount:    {"importe", "monto", "importe cobrado", "total"},
	normalize.FieldMethod:    {"medio de pago", "forma de pago", "medio", "tipo pago"},
	normalize.FieldCount:     {"cantidad", "cant", "operaciones"},
	normalize.FieldReturns:   {"devoluciones", "importe devuelto", "reversas"},
	normalize.FieldExtraCash: {"recargo efectivo", "adicional efectivo"},
	normalize.FieldExtraCard: {"recargo tarjeta", "adicional tarjeta"},
}

// CobroExpress reads spreadsheet exports whose header row floats below a
// variable number of title rows.
type CobroExpress struct{}

func (CobroExpress) Provider() model.Provider { return model.ProviderCobroExpress }

func (CobroExpress) Modes() []Mode {
	return []Mode{ModeCobroExpressDaily, ModeCobroExpressDetailed}
}

func (c CobroExpress) Parse(data []byte, opts Options) ([]model.LineItem, error) {
	mode, err := resolveMode(c, opts)
	if err != nil {
		return nil, err
	}
	rows, err := loadRows(data)
	if err != nil {
		return nil, &StructureError{Provider: c.Provider(), FileName: opts.FileName, Err: err}
	}
	headerIdx := findHeaderRow(rows, opts.headerScanRows())
	if headerIdx < 0 {
		return nil, &StructureError{Provider: c.Provider(), FileName: opts.FileName, Err: ErrHeaderNotFound}
	}
	headers := rows[headerIdx]

	var items []model.LineItem
	for _, cells := range rows[headerIdx+1:] {
		rec := normalize.NewRecord(headers, cells)
		item, ok := cobroRow(rec, mode)
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// findHeaderRow returns the index of the first of the leading scan rows
// that names a terminal or amount column, or -1.
func findHeaderRow(rows [][]string, scan int) int {
	for i := 0; i < scan && i < len(rows); i++ {
		for _, cell := range rows[i] {
			f := normalize.Fold(cell)
			for _, kw := range cobroHeaderKeywords {
				if strings.Contains(f, kw) {
					return i
				}
			}
		}
	}
	return -1
}

func cobroRow(rec normalize.Record, mode Mode) (model.LineItem, bool) {
	rawTerminal, _ := cobroExpressFields.Lookup(rec, normalize.FieldTerminal)
	terminal := model.CleanTerminal(rawTerminal)
	if terminal == "" || strings.Contains(normalize.Fold(terminal), "total") {
		return model.LineItem{}, false
	}
	rawDate, _ := cobroExpressFields.Lookup(rec, normalize.FieldDate)
	date, ok := normalize.NormalizeDate(rawDate)
	if !ok {
		return model.LineItem{}, false
	}
	rawAmount, _ := cobroExpressFields.Lookup(rec, normalize.FieldAmount)

	item := model.LineItem{
		TerminalID: terminal,
		Date:       date,
		Amount:     normalize.NormalizeAmount(rawAmount),
		Method:     model.MethodCash,
		Count:      1,
		Raw:        rec.Map(),
	}
	if v, ok := cobroExpressFields.Lookup(rec, normalize.FieldMethod); ok {
		item.Method = classifyMethod(v)
	}
	if mode == ModeCobroExpressDetailed {
		return item, true
	}

	if v, ok := cobroExpressFields.Lookup(rec, normalize.FieldCount); ok {
		item.Count = parseCount(v)
	}
	item.Returns = lookupAmount(rec, normalize.FieldReturns)
	item.ExtraCash = lookupAmount(rec, normalize.FieldExtraCash)
	item.ExtraCard = lookupAmount(rec, normalize.FieldExtraCard)
	return item, true
}

func lookupAmount(rec normalize.Record, f normalize.Field) decimal.Decimal {
	v, ok := cobroExpressFields.Lookup(rec, f)
	if !ok {
		return decimal.Zero
	}
	return normalize.NormalizeAmount(v)
}

func classifyMethod(raw string) model.PaymentMethod {
	f := normalize.Fold(raw)
	for _, m := range cobroCardMarkers {
		if strings.Contains(f, m) {
			return model.MethodCard
		}
	}
	return model.MethodCash
}

// parseCount reads an operation count cell; blank or unreadable cells count
// as one operation.
func parseCount(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 1
}
