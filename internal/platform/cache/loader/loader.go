// Package loader registers cache drivers via blank imports.
//
// Usage in main.go:
//
//	import _ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache/loader"
package loader

import (
	// Register the memory cache driver
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache/memory"

	// Register the redis/valkey cache driver
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache/redis"
)
