package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verigate/code-server-go/internal/config"
	apperrors "github.com/verigate/code-server-go/internal/errors"
	"github.com/verigate/code-server-go/internal/store"
	"github.com/verigate/code-server-go/internal/util"
)

// CodeHandler is the HTTP adapter over the code store. It owns input
// validation; the store receives pre-validated arguments only.
type CodeHandler struct {
	store      store.CodeStore
	defaultTTL int
	maxTTL     int
	allowReuse bool
}

func NewCodeHandler(s store.CodeStore, cfg *config.Config) *CodeHandler {
	return &CodeHandler{
		store:      s,
		defaultTTL: cfg.DefaultTTLSeconds,
		maxTTL:     cfg.MaxTTLSeconds,
		allowReuse: cfg.AllowReuse,
	}
}

type addCodeRequest struct {
	Code       string          `json:"code"`
	TTLSeconds *int            `json:"ttl_seconds"`
	Metadata   json.RawMessage `json:"metadata"`
}

func (h *CodeHandler) AddCode(w http.ResponseWriter, r *http.Request) {
	var req addCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "ttl_seconds" {
			writeError(w, apperrors.InvalidTTL("ttl_seconds must be an integer"))
			return
		}
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeError(w, apperrors.MissingCode())
		return
	}

	ttl := h.defaultTTL
	if req.TTLSeconds != nil {
		ttl = *req.TTLSeconds
	}
	if ttl < config.MinTTLSeconds || ttl > h.maxTTL {
		writeError(w, apperrors.InvalidTTL("ttl_seconds out of range"))
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	expiresAt, err := h.store.Add(r.Context(), code, time.Duration(ttl)*time.Second, metadata)
	if err != nil {
		log.Error().Err(err).Str("code", util.MaskCode(code)).Msg("add code failed")
		writeError(w, apperrors.Database(err))
		return
	}

	log.Info().
		Str("code", util.MaskCode(code)).
		Int("ttlSeconds", ttl).
		Time("expiresAt", expiresAt).
		Msg("code added")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "added",
		"code":       code,
		"expires_at": formatTime(expiresAt),
	})
}

type checkCodeRequest struct {
	Code string `json:"code"`
}

func (h *CodeHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" && r.Body != nil {
		var req checkCodeRequest
		// A missing or malformed body is treated the same as a missing code.
		_ = json.NewDecoder(r.Body).Decode(&req)
		code = strings.TrimSpace(req.Code)
	}
	if code == "" {
		writeError(w, apperrors.MissingCode())
		return
	}

	rec, err := h.store.CheckAndConsume(r.Context(), code, h.allowReuse)
	if err != nil {
		if store.IsRedemptionFailure(err) {
			// One outward response for all three classifications, so callers
			// cannot probe which codes ever existed.
			log.Debug().Str("code", util.MaskCode(code)).Str("reason", err.Error()).Msg("code rejected")
			writeError(w, apperrors.InvalidOrExpired())
			return
		}
		log.Error().Err(err).Str("code", util.MaskCode(code)).Msg("check code failed")
		writeError(w, apperrors.Database(err))
		return
	}

	metadata := rec.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	log.Info().Str("code", util.MaskCode(code)).Msg("code consumed")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"code":     code,
		"metadata": metadata,
	})
}

func (h *CodeHandler) Purge(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Purge(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("purge failed")
		writeError(w, apperrors.Database(err))
		return
	}

	log.Info().Int64("removed", removed).Msg("codes purged")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "purged",
		"removed": removed,
	})
}

func (h *CodeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   formatTime(time.Now()),
	})
}

func (h *CodeHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "API running",
		"endpoints": []string{"/health", "/addcode", "/checkcode"},
	})
}
