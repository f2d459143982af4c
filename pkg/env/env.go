// Package env reads settings that are needed before the typed config is
// loaded, such as the bootstrap logger's output format.
package env

import (
	"os"
	"strings"
)

const prefix = "SUPPLYHUB_"

// Lookup returns SUPPLYHUB_<key>, then the bare <key>, then fallback.
func Lookup(key, fallback string) string {
	for _, name := range []string{prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
