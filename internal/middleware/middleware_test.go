package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/uristat/internal/extractor"
	"github.com/torosent/uristat/internal/middleware"
	"github.com/torosent/uristat/internal/uristat"
)

func newResolver(t *testing.T, opts []extractor.ResolverOption, providers ...extractor.Provider) *extractor.Resolver {
	t.Helper()
	reg, err := extractor.NewRegistry(providers...)
	require.NoError(t, err)
	res, err := extractor.NewResolver(reg, 16, opts...)
	require.NoError(t, err)
	return res
}

func TestHandlerRecordsTemplateAndLatency(t *testing.T) {
	mock := clock.NewMock()
	store := uristat.NewStore()
	resolver := newResolver(t, nil, extractor.NewPatterns(extractor.TypeRequestPath, "/users/{id}"))

	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.Add(250 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}), middleware.WithClock(mock))

	for _, id := range []string{"1", "2", "3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	}

	snap := store.Rotate()
	stat, ok := snap.URIs["/users/{id}"]
	require.True(t, ok, "got uris %v", snap.SortedURIs())
	assert.Equal(t, int64(3), stat.Total.Count)
	assert.Equal(t, int64(750), stat.Total.Total)
	assert.Equal(t, int64(250), stat.Total.Max)
	assert.Equal(t, int64(3), stat.Total.Buckets[1])
	assert.Equal(t, int64(0), stat.Failed.Count)
}

func TestHandlerCountsServerErrorsAsFailures(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, []extractor.ResolverOption{extractor.WithRawPathFallback(true)})

	status := http.StatusOK
	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.WriteHeader(http.StatusTeapot) // superfluous, ignored
	}))

	for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway, http.StatusInternalServerError} {
		status = code
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw", nil))
	}

	stat := store.Rotate().URIs["/raw"]
	assert.Equal(t, int64(4), stat.Total.Count)
	assert.Equal(t, int64(2), stat.Failed.Count)
}

func TestHandlerCustomFailureClassifier(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, []extractor.ResolverOption{extractor.WithRawPathFallback(true)})
	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), middleware.WithFailureClassifier(func(status int) bool { return status >= 400 }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, int64(1), store.Rotate().URIs["/limited"].Failed.Count)
}

func TestHandlerRecordsAndRepanics(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, []extractor.ResolverOption{extractor.WithRawPathFallback(true)})
	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	assert.PanicsWithValue(t, "handler exploded", func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	})

	stat := store.Rotate().URIs["/boom"]
	assert.Equal(t, int64(1), stat.Total.Count)
	assert.Equal(t, int64(1), stat.Failed.Count)
}

func TestSetAttributeFromHandler(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, nil,
		extractor.NewMapping(extractor.TypeRequestAttribute, "route"),
		extractor.NewPatterns(extractor.TypeRequestPath, "/orders/**"),
	)

	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/items") {
			assert.True(t, middleware.SetAttribute(r, "route", "/orders/{id}/items"))
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/9/items", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/9", nil))

	snap := store.Rotate()
	assert.Equal(t, int64(1), snap.URIs["/orders/{id}/items"].Total.Count)
	assert.Equal(t, int64(1), snap.URIs["/orders/**"].Total.Count)
}

func TestSetAttributeOutsideHandler(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, middleware.SetAttribute(r, "route", "/x"))
}

func TestHandlerBuffersBodyForFieldExtraction(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, []extractor.ResolverOption{extractor.WithMaxBody(1024)},
		extractor.NewFields(extractor.TypeRequestBody, "$.operationName"),
	)

	var seen string
	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(data)
	}))

	payload := `{"operationName":"GetUser","query":"{ user { id } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, payload, seen, "downstream handler still reads the full body")
	assert.Equal(t, int64(1), store.Rotate().URIs["GetUser"].Total.Count)
}

func TestHandlerBodyLargerThanLimit(t *testing.T) {
	store := uristat.NewStore()
	resolver := newResolver(t, []extractor.ResolverOption{extractor.WithMaxBody(8)},
		extractor.NewFields(extractor.TypeRequestBody, "$.op"),
	)

	var seen int
	h := middleware.Handler(resolver, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen = len(data)
	}))

	payload := `{"op":"a-very-long-operation-name"}`
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(payload))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, len(payload), seen)
	_, ok := store.Rotate().URIs[uristat.UnknownURI]
	assert.True(t, ok, "truncated body does not resolve")
}
