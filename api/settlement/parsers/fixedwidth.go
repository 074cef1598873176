package parsers

import (
	"regexp"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/normalize"
)

const (
	ModePagoFacilDetailed Mode = "detailed"
	ModePagoFacilDaily    Mode = "daily"
)

// Pago Fácil detail record layout.
const (
	pfRecordType    = "02"
	pfTypeEnd       = 2
	pfTerminalEnd   = 8
	pfDateEnd       = 16
	pfAmountEnd     = 29
	pfMinLineLength = pfAmountEnd
)

var (
	pfDailyTerminal = regexp.MustCompile(`A\d{5}`)
	pfDailyDate     = regexp.MustCompile(`\d{2}/\d{2}/\d{2}`)
	pfDailyAmount   = regexp.MustCompile(`[\d.]+,\d{2}`)
)

// PagoFacil reads the fixed-width settlement exports and the free-text
// daily listing.
type PagoFacil struct{}

func (PagoFacil) Provider() model.Provider { return model.ProviderPagoFacil }

func (PagoFacil) Modes() []Mode { return []Mode{ModePagoFacilDetailed, ModePagoFacilDaily} }

func (p PagoFacil) Parse(data []byte, opts Options) ([]model.LineItem, error) {
	mode, err := resolveMode(p, opts)
	if err != nil {
		return nil, err
	}
	lines := textLines(data)
	if mode == ModePagoFacilDaily {
		return parsePagoFacilDaily(lines), nil
	}
	return parsePagoFacilDetailed(lines), nil
}

func parsePagoFacilDetailed(lines []string) []model.LineItem {
	var items []model.LineItem
	for _, line := range lines {
		if len(line) < pfMinLineLength || line[:pfTypeEnd] != pfRecordType {
			continue
		}
		terminal := model.CleanTerminal(line[pfTypeEnd:pfTerminalEnd])
		if terminal == "" {
			continue
		}
		date, ok := normalize.NormalizePackedDate(line[pfTerminalEnd:pfDateEnd])
		if !ok {
			continue
		}
		amount, ok := normalize.MinorUnits(line[pfDateEnd:pfAmountEnd])
		if !ok {
			continue
		}
		items = append(items, model.LineItem{
			TerminalID: terminal,
			Date:       date,
			Amount:     amount,
			Method:     model.MethodCash,
			Count:      1,
			Raw:        map[string]string{"line": line},
		})
	}
	return items
}

func parsePagoFacilDaily(lines []string) []model.LineItem {
	var items []model.LineItem
	for _, line := range lines {
		terminal := pfDailyTerminal.FindString(line)
		rawDate := pfDailyDate.FindString(line)
		rawAmount := pfDailyAmount.FindString(line)
		if terminal == "" || rawDate == "" || rawAmount == "" {
			continue
		}
		date, ok := normalize.NormalizeDate(rawDate)
		if !ok {
			continue
		}
		amount, ok := normalize.ParseAmount(rawAmount)
		if !ok {
			continue
		}
		items = append(items, model.LineItem{
			TerminalID: terminal,
			Date:       date,
			Amount:     amount,
			Method:     model.MethodCash,
			Count:      1,
			Raw:        map[string]string{"line": line},
		})
	}
	return items
}
