package acserr

import (
	"os"
	"strings"
	"sync"
)

// secretEnvMarkers name the environment-variable substrings whose values
// must never cross the wire inside an error message.
var secretEnvMarkers = []string{"SECRET", "TOKEN", "PASSWORD", "KEY", "DSN", "URI", "URL"}

var (
	secretValuesOnce sync.Once
	secretValues     []string
)

// loadSecretValues snapshots the process environment once: worker
// environments are fixed at launch, so there is nothing to re-read.
func loadSecretValues() {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || len(value) < 6 {
			// Very short values redact into noise (and match
			// accidentally); leaking them is not meaningful either.
			continue
		}
		upper := strings.ToUpper(name)
		for _, marker := range secretEnvMarkers {
			if strings.Contains(upper, marker) {
				secretValues = append(secretValues, value)
				break
			}
		}
	}
}

// Redact replaces any secret-bearing environment value occurring in msg
// with a placeholder. Applied to every HandlerError message before it is
// encoded into a Reply.
func Redact(msg string) string {
	secretValuesOnce.Do(loadSecretValues)
	return redactWith(msg, secretValues)
}

func redactWith(msg string, values []string) string {
	for _, v := range values {
		msg = strings.ReplaceAll(msg, v, "[redacted]")
	}
	return msg
}
