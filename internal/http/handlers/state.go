package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/http/response"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
	"github.com/yungbote/synccore-backend/internal/registry"
)

// SealResponse carries just the current registry fingerprint.
type SealResponse struct {
	Seal string `json:"seal"`
}

// ExhaleResponse is the export view: the ordered url list importers
// consume, or the full state.
type ExhaleResponse struct {
	Status string                `json:"status"`
	Mode   string                `json:"mode"`
	URLs   []string              `json:"urls,omitempty"`
	State  *domain.RegistryState `json:"state,omitempty"`
}

type StateHandler struct {
	log   *logger.Logger
	store *registry.Store
}

func NewStateHandler(log *logger.Logger, store *registry.Store) *StateHandler {
	return &StateHandler{
		log:   log.With("handler", "StateHandler"),
		store: store,
	}
}

// Seal returns the current seal, honoring If-None-Match against the
// live value.
func (h *StateHandler) Seal(c *gin.Context) {
	seal := h.store.Seal()
	if notModified(c, seal) {
		return
	}
	setValidator(c, seal)
	response.RespondOK(c, SealResponse{Seal: seal})
}

// State returns the full snapshot under the same validator as Seal.
// The snapshot and its seal are taken as one consistent pair.
func (h *StateHandler) State(c *gin.Context) {
	snap := h.store.Snapshot()
	if notModified(c, snap.Seal) {
		return
	}
	setValidator(c, snap.Seal)
	response.RespondOK(c, snap)
}

// Exhale exports the merged result: mode=urls (default) for the
// importer-compatible url list, mode=state for the full snapshot.
func (h *StateHandler) Exhale(c *gin.Context) {
	mode := strings.ToLower(strings.TrimSpace(c.Query("mode")))
	if mode == "" {
		mode = "urls"
	}
	switch mode {
	case "urls":
		snap := h.store.Snapshot()
		urls := snap.URLs
		if urls == nil {
			urls = []string{}
		}
		response.RespondOK(c, ExhaleResponse{Status: "ok", Mode: "urls", URLs: urls})
	case "state":
		snap := h.store.Snapshot()
		response.RespondOK(c, ExhaleResponse{Status: "ok", Mode: "state", State: &snap})
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_mode", nil)
	}
}

// notModified answers the conditional read: when the caller's validator
// equals the live seal it writes 304 with no body.
func notModified(c *gin.Context, seal string) bool {
	validator := strings.TrimSpace(c.GetHeader("If-None-Match"))
	if validator == "" {
		return false
	}
	validator = strings.TrimPrefix(validator, "W/")
	validator = strings.Trim(validator, `"`)
	if validator != seal {
		return false
	}
	c.Header("ETag", quote(seal))
	c.Status(http.StatusNotModified)
	return true
}

func setValidator(c *gin.Context, seal string) {
	c.Header("ETag", quote(seal))
}

func quote(s string) string { return `"` + s + `"` }
