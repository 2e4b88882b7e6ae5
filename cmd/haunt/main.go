// Haunt Core - proximity-triggered prop controller.
//
// Watches a range sensor and, when a visitor comes close enough, plays a
// configured sequence of motor, relay, light and audio actions.
//
//	haunt run --config configs/config.yaml
//	haunt selftest
//	haunt run --simulate
package main

import (
	"os"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
