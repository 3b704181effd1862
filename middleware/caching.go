/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	appkitmw "github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"

	"github.com/acronis/go-loadguard/respcache"
)

// DefaultCachingTTL is a default TTL of cached responses.
const DefaultCachingTTL = time.Minute

// TagProviderFunc supplies the validation tag that is current at the moment
// of the request (e.g. the active policy or compliance version hash).
// Entries stored under a different tag are treated as stale.
type TagProviderFunc func(r *http.Request) string

// CachingKeyArgsFunc extracts the arguments that identify the operation result
// from the request. The default implementation uses the flattened query parameters.
type CachingKeyArgsFunc func(r *http.Request) map[string]string

// CachingOpts represents options for the ResponseCaching middleware.
type CachingOpts struct {
	// TTL is the time-to-live of cached responses. DefaultCachingTTL is used by default.
	TTL time.Duration

	// KeyArgs extracts the operation arguments used for cache key generation.
	KeyArgs CachingKeyArgsFunc
}

// ResponseCaching is a middleware that memoizes successful JSON responses of
// idempotent GET requests in the passed cache. Requests with other methods are
// passed through unchanged. The cache key is derived from the namespace, the
// request path, and the operation arguments; the entry is valid only while the
// tag returned by tagProvider stays the same.
func ResponseCaching(
	cache *respcache.Cache, namespace string, tagProvider TagProviderFunc,
) func(next http.Handler) http.Handler {
	return ResponseCachingWithOpts(cache, namespace, tagProvider, CachingOpts{})
}

// ResponseCachingWithOpts is a configurable version of the ResponseCaching middleware.
func ResponseCachingWithOpts(
	cache *respcache.Cache, namespace string, tagProvider TagProviderFunc, opts CachingOpts,
) func(next http.Handler) http.Handler {
	if opts.TTL == 0 {
		opts.TTL = DefaultCachingTTL
	}
	if opts.KeyArgs == nil {
		opts.KeyArgs = queryKeyArgs
	}
	return func(next http.Handler) http.Handler {
		return &cachingHandler{
			next:        next,
			cache:       cache,
			namespace:   namespace,
			tagProvider: tagProvider,
			opts:        opts,
		}
	}
}

type cachingHandler struct {
	next        http.Handler
	cache       *respcache.Cache
	namespace   string
	tagProvider TagProviderFunc
	opts        CachingOpts
}

func (h *cachingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.next.ServeHTTP(rw, r)
		return
	}

	key := respcache.Key(h.namespace, r.URL.Path, h.opts.KeyArgs(r))
	tag := h.tagProvider(r)

	if payload, found := h.cache.Get(r.Context(), key, tag); found {
		rw.Header().Set("Content-Type", restapi.ContentTypeAppJSON)
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write(payload)
		return
	}

	wrw := newBufferingResponseWriter(rw)
	h.next.ServeHTTP(wrw, r)

	if wrw.status != http.StatusOK ||
		!strings.HasPrefix(wrw.Header().Get("Content-Type"), restapi.ContentTypeAppJSON) {
		return
	}
	if err := h.cache.Put(r.Context(), key, json.RawMessage(wrw.buf.Bytes()), tag, h.opts.TTL); err != nil {
		// The handler produced a body that is not valid JSON, nothing to cache.
		if logger := appkitmw.GetLoggerFromContext(r.Context()); logger != nil {
			logger.Warn("response is not cacheable", log.Error(err))
		}
	}
}

func queryKeyArgs(r *http.Request) map[string]string {
	query := r.URL.Query()
	args := make(map[string]string, len(query))
	for name, values := range query {
		args[name] = strings.Join(values, ",")
	}
	return args
}
