package acserr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactWith(t *testing.T) {
	values := []string{"s3cr3t-value", "postgres://u:p@host/db"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single occurrence",
			in:   "dial failed with password s3cr3t-value",
			want: "dial failed with password [redacted]",
		},
		{
			name: "multiple values",
			in:   "s3cr3t-value at postgres://u:p@host/db",
			want: "[redacted] at [redacted]",
		},
		{
			name: "no secrets untouched",
			in:   "user not found",
			want: "user not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactWith(tt.in, values))
		})
	}
}

func TestRedact_UsesProcessEnvironment(t *testing.T) {
	// Redact snapshots the environment once per process, so this only
	// asserts it passes clean messages through unchanged.
	assert.Equal(t, "plain message", Redact("plain message"))
}
