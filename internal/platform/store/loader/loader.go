// Package loader registers store drivers via blank imports.
//
// Usage in main.go:
//
//	import _ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/loader"
package loader

import (
	// Register the memory store driver
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/memory"

	// Register the sqlite store driver
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/platform/store/sqlite"
)
