package api

import (
	"net/http"

	"github.com/vkwatch/vkwatch-api/internal/api/shared"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/service"
)

// KeywordHandler serves the keyword set used by the matcher.
type KeywordHandler struct {
	keywordService service.KeywordService
}

// NewKeywordHandler creates a new KeywordHandler
func NewKeywordHandler(keywordService service.KeywordService) *KeywordHandler {
	return &KeywordHandler{keywordService: keywordService}
}

// ListKeywords handles GET /api/keywords requests
func (h *KeywordHandler) ListKeywords(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.keywordService.ListActive(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := make([]KeywordResponse, 0, len(keywords))
	for _, k := range keywords {
		resp = append(resp, keywordToResponse(k))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CreateKeyword handles POST /api/keywords requests
func (h *KeywordHandler) CreateKeyword(w http.ResponseWriter, r *http.Request) {
	var req CreateKeywordRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	kw := &domain.Keyword{
		Word:            req.Word,
		IsWholeWord:     req.IsWholeWord,
		IsCaseSensitive: req.IsCaseSensitive,
		Category:        req.Category,
		Active:          true,
	}
	if err := h.keywordService.Create(r.Context(), kw); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, keywordToResponse(*kw))
}
