package cache_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/cachewatch/cache"
)

func ExampleMemoryCache_RemoveMatching() {
	c := cache.NewMemoryCache(cache.DefaultPolicy())
	ctx := context.Background()

	_ = c.SetTagged(ctx, "session", []byte("..."), 0, cache.TagAuth)
	_ = c.SetTagged(ctx, "patients", []byte("..."), 0, "list")
	_ = c.SetTagged(ctx, "me", []byte("..."), 0, cache.TagProfile)

	removed := c.RemoveMatching(ctx, cache.Not(cache.HasAnyTag(cache.TagAuth, cache.TagProfile, cache.TagCritical)))
	fmt.Println("removed:", removed)
	fmt.Println("remaining:", c.Len())
	// Output:
	// removed: 1
	// remaining: 2
}

func ExampleLoader_Load() {
	c := cache.NewMemoryCache(cache.DefaultPolicy())
	loader := cache.NewLoader(c, nil)
	ctx := context.Background()

	fetch := func(context.Context) ([]byte, error) {
		fmt.Println("fetching")
		return []byte("3 patients"), nil
	}

	v, _ := loader.Load(ctx, "patient-list", map[string]any{"page": 1}, nil, fetch)
	fmt.Println(string(v))
	v, _ = loader.Load(ctx, "patient-list", map[string]any{"page": 1}, nil, fetch)
	fmt.Println(string(v))
	// Output:
	// fetching
	// 3 patients
	// 3 patients
}
