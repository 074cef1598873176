package settlement

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"CollectLedger/api"
	"CollectLedger/api/constants"
	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/parsers"
	"CollectLedger/internal/checksum"
	"CollectLedger/internal/config"
	"CollectLedger/internal/resource"

	"github.com/gorilla/mux"
)

var uploadFields = []string{"file", "archivo"}

// ScratchStore materialises uploads on disk for the length of a request.
type ScratchStore interface {
	Acquire(src io.Reader, name string) (*resource.ScratchFile, error)
	Release(f *resource.ScratchFile)
}

type Handlers struct {
	Importer       *Importer
	Scratch        ScratchStore
	Batches        BatchRecorder
	Events         http.Handler
	MaxUploadBytes int64
}

func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/import/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/import/providers", h.providers).Methods(http.MethodGet)
	r.HandleFunc("/import/batches", h.batches).Methods(http.MethodGet)
	r.HandleFunc("/import/events", h.events).Methods(http.MethodGet)
	r.HandleFunc("/import/{provider}", h.upload).Methods(http.MethodPost)
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	api.RespondWithPayload(w, http.StatusOK, "settlement service is healthy", nil)
}

func (h *Handlers) providers(w http.ResponseWriter, r *http.Request) {
	api.RespondWithPayload(w, http.StatusOK, "", ModesOf())
}

func (h *Handlers) batches(w http.ResponseWriter, r *http.Request) {
	limit := config.DefaultBatchListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidLimit)
			return
		}
		limit = n
	}
	if h.Batches == nil {
		api.RespondWithPayload(w, http.StatusOK, "", []interface{}{})
		return
	}
	list, err := h.Batches.RecentBatches(r.Context(), limit)
	if err != nil {
		api.LogError("list batches: %v", err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrBatchesQueryFailed)
		return
	}
	api.RespondWithPayload(w, http.StatusOK, "", list)
}

func (h *Handlers) events(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		api.RespondWithError(w, http.StatusServiceUnavailable, constants.ErrEventsUnavailable)
		return
	}
	h.Events.ServeHTTP(w, r)
}

func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	provider, err := parsers.ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.Formatf(constants.ErrUnknownProvider, mux.Vars(r)["provider"]))
		return
	}

	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = config.MaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.RespondWithError(w, http.StatusRequestEntityTooLarge, constants.Formatf(constants.ErrFileTooLarge, maxBytes>>20))
			return
		}
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileRequired)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header := formFile(r)
	if file == nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileRequired)
		return
	}
	scratch, err := h.Scratch.Acquire(file, header.Filename)
	file.Close()
	if err != nil {
		api.LogError("scratch file for %s: %v", header.Filename, err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrFileReadFailed)
		return
	}
	defer h.Scratch.Release(scratch)

	if err := checksum.NewMatcher(r.Header.Get("X-Content-SHA256")).Match(scratch.Hash); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrChecksumMismatch)
		return
	}
	data, err := scratch.Bytes()
	if err != nil {
		api.LogError("read scratch %s: %v", scratch.Path, err)
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrFileReadFailed)
		return
	}

	mode := r.FormValue("mode")
	summary, err := h.Importer.Run(r.Context(), ImportRequest{
		Provider: provider,
		Mode:     mode,
		FileName: header.Filename,
		Data:     data,
		Hash:     scratch.Hash,
	})
	if err != nil {
		status, msg := userFriendlyUploadError(err, mode, provider)
		api.RespondWithError(w, status, msg)
		return
	}
	api.LogInfo("import %s %s: inserted=%d updated=%d duplicates=%d denied=%d errors=%d",
		provider, header.Filename, summary.Inserted, summary.Updated, summary.Duplicates, summary.Denied, summary.Errors)
	api.RespondWithPayload(w, http.StatusOK,
		constants.Formatf(constants.MsgImportCompleted, summary.Inserted, summary.Updated, summary.Duplicates, summary.Denied, summary.Errors),
		summary)
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader) {
	for _, field := range uploadFields {
		f, h, err := r.FormFile(field)
		if err == nil {
			return f, h
		}
	}
	return nil, nil
}

// userFriendlyUploadError maps pipeline errors to a status and a message the
// branch staff can act on.
func userFriendlyUploadError(err error, mode string, provider model.Provider) (int, string) {
	switch {
	case errors.Is(err, parsers.ErrUnknownMode):
		return http.StatusBadRequest, constants.Formatf(constants.ErrUnknownMode, mode, provider.DisplayName(), supportedModes(provider))
	case errors.Is(err, parsers.ErrUnknownProvider):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, parsers.ErrHeaderNotFound):
		return http.StatusUnprocessableEntity, constants.ErrHeaderNotFound
	case errors.Is(err, parsers.ErrUnreadableFile):
		return http.StatusUnprocessableEntity, constants.ErrUnreadableFile
	case parsers.IsStructureError(err):
		return http.StatusUnprocessableEntity, err.Error()
	}
	api.LogError("import failed: %v", err)
	return http.StatusInternalServerError, constants.ErrImportFailed
}

func supportedModes(provider model.Provider) string {
	parser, err := parsers.ForProvider(provider)
	if err != nil {
		return ""
	}
	modes := make([]string, 0, len(parser.Modes()))
	for _, m := range parser.Modes() {
		modes = append(modes, string(m))
	}
	return strings.Join(modes, ", ")
}
