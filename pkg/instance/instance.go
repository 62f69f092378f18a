package instance

import (
	"os"

	"github.com/angelmondragon/storefront/pkg/env"
)

// GetID identifies the running process for logs and lock ownership.
// STOREFRONT_INSTANCE_ID wins, then the platform dyno name, then the hostname.
func GetID() string {
	fallback := "local"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.First(fallback, "STOREFRONT_INSTANCE_ID", "DYNO")
}
