// Package cache provides the disposable in-process caches the watchdog
// invalidates: a query-result cache for completed asynchronous fetches and a
// response cache for network-layer replies.
//
// Entries carry free-form tags ("auth", "profile", "critical", a session's
// protocol family, ...) so invalidation can be expressed as "remove matching"
// rather than "remove the keys I saw earlier". A freshness Policy decides
// whether a present entry may be served as-is or must be refetched; the
// watchdog's first tier swaps in AlwaysStalePolicy to force every future read
// through the fetch path.
//
// # Basic Usage
//
//	queries := cache.NewMemoryCache(cache.DefaultPolicy())
//	loader := cache.NewLoader(queries, cache.NewDefaultKeyer())
//
//	data, err := loader.Load(ctx, "patient-list", params, []string{"profile"},
//	    func(ctx context.Context) ([]byte, error) {
//	        return backend.ListPatients(ctx, params)
//	    })
package cache
