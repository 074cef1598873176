package parsers

import (
	"errors"
	"fmt"
	"strings"

	"CollectLedger/api/settlement/model"
)

// Mode selects one of the file layouts a provider publishes.
type Mode string

const DefaultHeaderScanRows = 20

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownMode     = errors.New("unknown import mode")
	ErrHeaderNotFound  = errors.New("header row not found")
	ErrUnreadableFile  = errors.New("file could not be read as spreadsheet or delimited text")
)

// StructureError reports a file whose overall shape cannot be parsed. It
// aborts the whole import, unlike bad individual lines which are skipped.
type StructureError struct {
	Provider model.Provider
	FileName string
	Err      error
}

func (e *StructureError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("%s file %q: %v", e.Provider, e.FileName, e.Err)
	}
	return fmt.Sprintf("%s file: %v", e.Provider, e.Err)
}

func (e *StructureError) Unwrap() error { return e.Err }

// IsStructureError reports whether err aborts an import for structural reasons.
func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}

type Options struct {
	Mode           Mode
	HeaderScanRows int
	FileName       string
}

func (o Options) headerScanRows() int {
	if o.HeaderScanRows <= 0 {
		return DefaultHeaderScanRows
	}
	return o.HeaderScanRows
}

// Parser turns the raw bytes of one provider file into line items.
type Parser interface {
	Provider() model.Provider
	// Modes lists accepted layouts; the first is the default.
	Modes() []Mode
	Parse(data []byte, opts Options) ([]model.LineItem, error)
}

var registry = map[model.Provider]Parser{
	model.ProviderPagoFacil:    PagoFacil{},
	model.ProviderSeac:         Seac{},
	model.ProviderCobroExpress: CobroExpress{},
}

// ForProvider returns the parser registered for p.
func ForProvider(p model.Provider) (Parser, error) {
	if parser, ok := registry[p]; ok {
		return parser, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
}

// ParseProvider maps the spellings used in URLs and upload forms.
func ParseProvider(name string) (model.Provider, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch key {
	case "pagofacil", "pf":
		return model.ProviderPagoFacil, nil
	case "seac":
		return model.ProviderSeac, nil
	case "cobroexpress", "ce":
		return model.ProviderCobroExpress, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// ResolveMode validates a requested mode against the parser, falling back to
// its default when empty. Aliases are mapped to their canonical mode.
func ResolveMode(p Parser, requested string) (Mode, error) {
	modes := p.Modes()
	m := Mode(strings.ToLower(strings.TrimSpace(requested)))
	if m == "" {
		return modes[0], nil
	}
	if a, ok := p.(interface{ canonicalMode(Mode) Mode }); ok {
		m = a.canonicalMode(m)
	}
	for _, known := range modes {
		if known == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w %q for %s", ErrUnknownMode, requested, p.Provider())
}

func resolveMode(p Parser, opts Options) (Mode, error) {
	return ResolveMode(p, string(opts.Mode))
}
