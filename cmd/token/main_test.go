package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/config"
	"github.com/capitalize-ai/field-ops-assistant/internal/middleware"
)

func TestRootCmd(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiration: time.Hour}

	tests := []struct {
		name       string
		args       []string
		wantScopes []string
	}{
		{"default scope", []string{"--subject", "slack-adapter"}, []string{middleware.ScopeEvents}},
		{"explicit scopes", []string{"--subject", "slack-adapter", "--scopes", "events:write,state:read"}, []string{middleware.ScopeEvents, middleware.ScopeState}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := rootCmd(cfg)
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)
			require.NoError(t, cmd.Execute())

			claims := &middleware.Claims{}
			_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			require.NoError(t, err)
			assert.Equal(t, "slack-adapter", claims.Subject)
			assert.Equal(t, tt.wantScopes, claims.Scopes)
		})
	}
}

func TestRootCmd_RequiresSubject(t *testing.T) {
	cmd := rootCmd(&config.Config{JWTSecret: "test-secret", JWTExpiration: time.Hour})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
