package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/http/response"
	"github.com/yungbote/synccore-backend/internal/platform/apierr"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
	"github.com/yungbote/synccore-backend/internal/registry"
	"github.com/yungbote/synccore-backend/internal/services"
)

const (
	defaultMaxBytesPerFile = 10_000_000
	minMaxBytesPerFile     = 1_000
	maxMaxBytesPerFile     = 100_000_000
)

// InhaleResponse is the ingestion summary. registry_urls and state are
// attached only when the caller asked for them.
type InhaleResponse struct {
	Status           string                `json:"status"`
	FilesReceived    int                   `json:"files_received"`
	CrystalsTotal    int                   `json:"crystals_total"`
	CrystalsImported int                   `json:"crystals_imported"`
	CrystalsFailed   int                   `json:"crystals_failed"`
	LatestPulse      *int                  `json:"latest_pulse,omitempty"`
	RegistryURLs     []string              `json:"registry_urls,omitempty"`
	State            *domain.RegistryState `json:"state,omitempty"`
	Errors           []string              `json:"errors"`
}

type InhaleHandler struct {
	log    *logger.Logger
	ingest services.IngestService
	store  *registry.Store
}

func NewInhaleHandler(log *logger.Logger, ingest services.IngestService, store *registry.Store) *InhaleHandler {
	return &InhaleHandler{
		log:    log.With("handler", "InhaleHandler"),
		ingest: ingest,
		store:  store,
	}
}

// Inhale merges one or more uploaded JSON crystal files into the
// registry and reports per-file outcomes.
func (h *InhaleHandler) Inhale(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		response.RespondError(c, http.StatusBadRequest, "no_files", nil)
		return
	}

	includeState := queryBool(c, "include_state", true)
	includeURLs := queryBool(c, "include_urls", true)
	maxBytes := queryInt64(c, "max_bytes_per_file", defaultMaxBytesPerFile)
	if maxBytes < minMaxBytesPerFile {
		maxBytes = minMaxBytesPerFile
	}
	if maxBytes > maxMaxBytesPerFile {
		maxBytes = maxMaxBytesPerFile
	}

	files := make([]services.UploadedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		name := fh.Filename
		if name == "" {
			name = "crystal.json"
		}
		r, err := fh.Open()
		if err != nil {
			h.log.Error("cannot open uploaded file", "file", name, "error", err)
			files = append(files, services.UploadedFile{Name: name, Data: nil})
			continue
		}
		// Read one byte past the cap so the service can tell
		// at-the-limit from over-the-limit.
		data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
		_ = r.Close()
		if err != nil {
			h.log.Error("cannot read uploaded file", "file", name, "error", err)
			data = nil
		}
		files = append(files, services.UploadedFile{Name: name, Data: data})
	}

	report, err := h.ingest.Inhale(c.Request.Context(), files, maxBytes)
	if err != nil {
		var aerr *apierr.Error
		if errors.As(err, &aerr) {
			response.RespondError(c, aerr.Status, aerr.Code, aerr.Err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "merge_failed", err)
		return
	}

	out := InhaleResponse{
		Status:           ingestStatus(report),
		FilesReceived:    report.FilesReceived,
		CrystalsTotal:    report.CrystalsTotal,
		CrystalsImported: report.CrystalsImported,
		CrystalsFailed:   report.CrystalsFailed,
		LatestPulse:      report.LatestPulse,
		Errors:           report.Errors,
	}
	if includeState || includeURLs {
		snap := h.store.Snapshot()
		if includeURLs {
			out.RegistryURLs = snap.URLs
		}
		if includeState {
			out.State = &snap
		}
	}
	response.RespondOK(c, out)
}

func ingestStatus(report *domain.InhaleReport) string {
	switch {
	case len(report.Errors) == 0:
		return "ok"
	case report.CrystalsImported > 0:
		return "partial"
	default:
		return "error"
	}
}

func queryBool(c *gin.Context, name string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(c.Query(name)))
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func queryInt64(c *gin.Context, name string, def int64) int64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
