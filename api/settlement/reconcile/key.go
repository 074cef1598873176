package reconcile

import (
	"fmt"
	"time"

	"CollectLedger/api/settlement/model"
)

const keyDateLayout = "20060102"

// MakeKey builds the ledger key PREFIX_TERMINAL_YYYYMMDD_METHOD.
func MakeKey(p model.Provider, terminal string, date time.Time, method model.PaymentMethod) string {
	return fmt.Sprintf("%s_%s_%s_%s", p.KeyPrefix(), model.CleanTerminal(terminal), date.UTC().Format(keyDateLayout), method)
}
