package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/content"
	"github.com/jazzypop/content-engine/internal/dedup"
	httperrors "github.com/jazzypop/content-engine/pkg/http/errors"
)

// Selector is the dedup selector as seen by the API.
type Selector interface {
	Select(ctx context.Context, req dedup.Request) ([]content.Pack, error)
	Strategy() string
}

// ContentHandler serves unseen content packs.
type ContentHandler struct {
	selector Selector
	logger   zerolog.Logger
}

func NewContentHandler(selector Selector, logger zerolog.Logger) *ContentHandler {
	return &ContentHandler{selector: selector, logger: logger.With().Str("component", "content_http").Logger()}
}

type contentResponse struct {
	Items    []content.Pack `json:"items"`
	Count    int            `json:"count"`
	Strategy string         `json:"strategy"`
}

// HandleGet serves GET /v1/content/{type}?category=&count=&user_id=&session_id=.
// The user and session ids may also arrive as X-User-ID and X-Session-ID headers.
func (h *ContentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	contentType := r.PathValue("type")
	if !content.IsKnownType(contentType) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeUnknownContentType, "unknown content type "+strconv.Quote(contentType))
		return
	}

	q := r.URL.Query()
	req := dedup.Request{
		ContentType: contentType,
		Category:    q.Get("category"),
		UserID:      firstNonEmpty(q.Get("user_id"), r.Header.Get("X-User-ID")),
		SessionID:   firstNonEmpty(q.Get("session_id"), r.Header.Get("X-Session-ID")),
	}
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidCount, "count must be a non-negative integer", "count")
			return
		}
		req.Count = n
	}

	packs, err := h.selector.Select(r.Context(), req)
	if err != nil {
		logger := h.logger.With().Str("content_type", req.ContentType).Logger()
		if errors.Is(err, content.ErrStoreUnavailable) {
			logger.Error().Err(err).Msg("content store unavailable")
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "content store unavailable")
			return
		}
		logger.Error().Err(err).Msg("content selection failed")
		httperrors.RespondInternalError(w, "could not select content")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(contentResponse{
		Items:    packs,
		Count:    len(packs),
		Strategy: h.selector.Strategy(),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
