package reports

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"CollectLedger/api"
	"CollectLedger/api/constants"

	"github.com/gorilla/mux"
)

// Source yields the grouped ledger lines; *Repository implements it.
type Source interface {
	Daily(ctx context.Context, f Filter) ([]Line, error)
}

type Handlers struct {
	Source Source
}

func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/reports/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/reports/daily", h.daily).Methods(http.MethodGet)
	r.HandleFunc("/reports/daily.xlsx", h.dailyXLSX).Methods(http.MethodGet)
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	api.RespondWithPayload(w, http.StatusOK, "reports service is healthy", nil)
}

func (h *Handlers) daily(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.load(w, r)
	if !ok {
		return
	}
	api.RespondWithPayload(w, http.StatusOK, "", rows)
}

func (h *Handlers) dailyXLSX(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := ExportXLSX(rows, &buf); err != nil {
		api.LogError("daily report export: %v", err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrReportExport)
		return
	}
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeXLSX)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=daily_report_%s.xlsx", time.Now().Format("20060102")))
	w.Write(buf.Bytes())
}

func (h *Handlers) load(w http.ResponseWriter, r *http.Request) ([]Row, bool) {
	f, errMsg := parseFilter(r)
	if errMsg != "" {
		api.RespondWithError(w, http.StatusBadRequest, errMsg)
		return nil, false
	}
	lines, err := h.Source.Daily(r.Context(), f)
	if err != nil {
		api.LogError("daily report: %v", err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrReportFailed)
		return nil, false
	}
	return Pivot(lines), true
}

// parseFilter reads from/to (YYYY-MM-DD, also accepted as desde/hasta) and
// branch (also sucursal).
func parseFilter(r *http.Request) (Filter, string) {
	q := r.URL.Query()
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(q.Get(k)); v != "" {
				return v
			}
		}
		return ""
	}
	var f Filter
	if raw := pick("from", "desde"); raw != "" {
		d, err := time.Parse(constants.DateFormat, raw)
		if err != nil {
			return f, constants.Formatf(constants.ErrInvalidDate, raw)
		}
		f.From = d
	}
	if raw := pick("to", "hasta"); raw != "" {
		d, err := time.Parse(constants.DateFormat, raw)
		if err != nil {
			return f, constants.Formatf(constants.ErrInvalidDate, raw)
		}
		f.To = d
	}
	if raw := pick("branch", "sucursal"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, constants.ErrInvalidBranch
		}
		f.BranchID = id
	}
	return f, ""
}
