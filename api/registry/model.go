package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"CollectLedger/api/settlement/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Kind names one level of the configuration tree as it appears in URLs.
type Kind string

const (
	KindBranch   Kind = "branches"
	KindRegister Kind = "registers"
	KindTerminal Kind = "terminals"
)

func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindBranch, "sucursales":
		return KindBranch, true
	case KindRegister, "cajas":
		return KindRegister, true
	case KindTerminal, "terminales":
		return KindTerminal, true
	}
	return "", false
}

type Branch struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Registers []Register `json:"registers"`
}

type Register struct {
	ID        int64      `json:"id"`
	BranchID  int64      `json:"branch_id"`
	Name      string     `json:"name"`
	Terminals []Terminal `json:"terminals"`
}

type Terminal struct {
	ID              int64           `json:"id"`
	RegisterID      int64           `json:"register_id"`
	Provider        model.Provider  `json:"provider"`
	ExternalID      string          `json:"external_id"`
	CommissionPct   decimal.Decimal `json:"commission_pct"`
	CommissionFixed decimal.Decimal `json:"commission_fixed"`
}

type BranchPayload struct {
	Name string `json:"name" validate:"required,max=120"`
}

type RegisterPayload struct {
	BranchID int64  `json:"branch_id" validate:"required,gt=0"`
	Name     string `json:"name" validate:"required,max=120"`
}

type TerminalPayload struct {
	RegisterID      int64           `json:"register_id" validate:"required,gt=0"`
	Provider        model.Provider  `json:"provider" validate:"required,oneof=PAGO_FACIL SEAC COBRO_EXPRESS"`
	ExternalID      string          `json:"external_id" validate:"required,max=32,alphanum"`
	CommissionPct   decimal.Decimal `json:"commission_pct" validate:"gte=0,lte=100"`
	CommissionFixed decimal.Decimal `json:"commission_fixed" validate:"gte=0"`
}

// Normalize trims names and upper-cases the terminal id so it matches the
// way parsers report terminals.
func (p *BranchPayload) Normalize()   { p.Name = strings.TrimSpace(p.Name) }
func (p *RegisterPayload) Normalize() { p.Name = strings.TrimSpace(p.Name) }
func (p *TerminalPayload) Normalize() {
	p.ExternalID = model.CleanTerminal(p.ExternalID)
	p.Provider = model.Provider(strings.ToUpper(strings.TrimSpace(string(p.Provider))))
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate returns nil or an error listing every failing field as field:tag.
func Validate(payload interface{}) error {
	err := payloadValidator().Struct(payload)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		parts = append(parts, fmt.Sprintf("%s:%s", ve.Field(), ve.Tag()))
	}
	return errors.New(strings.Join(parts, ", "))
}
