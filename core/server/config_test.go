package server_test

import (
	"testing"

	"vitals-manager/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_RequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   bool
	}{
		{"With Key", "secret", true},
		{"Empty Key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{ApiKey: tt.apiKey}
			assert.Equal(t, tt.want, c.RequireAuth())
		})
	}
}
