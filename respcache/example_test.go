/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/acronis/go-loadguard/respcache"
)

func Example() {
	type ValidationResult struct {
		Compliant  bool     `json:"compliant"`
		Violations []string `json:"violations"`
	}

	// Make a cache backed by the in-memory store.
	// Use NewRedisStore to share cached responses between service instances.
	cache, err := respcache.New(respcache.NewMemoryStore(), nil)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	// The tag identifies the version of the rules the result was computed with.
	// Bump it whenever the rules change, and the old entries become stale.
	policyTag := "policy-v1"

	key := respcache.Key("governance", "validate", map[string]string{"tenant": "42", "scope": "eu"})

	if _, found := cache.Get(ctx, key, policyTag); !found {
		fmt.Println("miss, computing")
		result := ValidationResult{Compliant: true, Violations: []string{}}
		if err = cache.Put(ctx, key, result, policyTag, time.Minute); err != nil {
			log.Fatal(err)
		}
	}

	var cached ValidationResult
	if cache.GetJSON(ctx, key, policyTag, &cached) {
		fmt.Printf("hit, compliant=%v\n", cached.Compliant)
	}

	// All cached validation results can be dropped at once, e.g. on policy import.
	removed := cache.InvalidateAll(ctx, respcache.KeyPrefix("governance", "validate"))
	fmt.Printf("invalidated %d entries\n", removed)

	// Output:
	// miss, computing
	// hit, compliant=true
	// invalidated 1 entries
}
