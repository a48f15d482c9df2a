package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkwatch/vkwatch-api/internal/api"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/platform/memory"
	"github.com/vkwatch/vkwatch-api/internal/service"
)

type countingCache struct{ invalidations int }

func (c *countingCache) Invalidate() { c.invalidations++ }

func newKeywordRouter(t *testing.T, cache service.KeywordCache, seed ...domain.Keyword) http.Handler {
	t.Helper()
	svc, err := service.NewKeywordService(memory.NewKeywordStore(seed...), cache, testLogger())
	require.NoError(t, err)

	h := api.NewKeywordHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/keywords", h.ListKeywords)
	r.Post("/api/keywords", h.CreateKeyword)
	return r
}

func TestListKeywords(t *testing.T) {
	t.Parallel()
	router := newKeywordRouter(t, nil,
		domain.Keyword{Word: "price", Active: true},
		domain.Keyword{Word: "retired", Active: false},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/keywords", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody[[]api.KeywordResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "price", got[0].Word)
	assert.True(t, got[0].Active)
}

func TestCreateKeyword(t *testing.T) {
	t.Parallel()
	cache := &countingCache{}
	router := newKeywordRouter(t, cache)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keywords", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"word":"  доставка ","is_whole_word":true,"category":"logistics"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[api.KeywordResponse](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "доставка", created.Word)
	assert.True(t, created.IsWholeWord)
	assert.True(t, created.Active)
	assert.Equal(t, 1, cache.invalidations)

	assert.Equal(t, http.StatusConflict, post(`{"word":"доставка"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"word":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"word":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
	assert.Equal(t, 1, cache.invalidations)
}
