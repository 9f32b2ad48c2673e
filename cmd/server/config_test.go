package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-session-auth"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "postgres url with password",
			dsn:  "postgres://app:s3cret@db:5432/auth?sslmode=disable",
			want: "postgres://app:********@db:5432/auth?sslmode=disable",
		},
		{
			name: "postgres url without password",
			dsn:  "postgres://app@db:5432/auth",
			want: "postgres://app@db:5432/auth",
		},
		{
			name: "keyword dsn",
			dsn:  "host=db user=app password=s3cret dbname=auth",
			want: "host=db user=app password=******** dbname=auth",
		},
		{
			name: "sqlite file",
			dsn:  "file:session_auth.db?cache=shared",
			want: "file:session_auth.db?cache=shared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactDSN(tt.dsn))
		})
	}
}

func TestAppConfigRedacted(t *testing.T) {
	cfg := AppConfig{
		Server: ServerConfig{DBDriver: driverPostgres, DSN: "postgres://app:s3cret@db/auth"},
		Auth:   auth.Config{SigningKey: "super-secret-signing-key"},
	}

	out := cfg.Redacted()
	assert.NotContains(t, out.Server.DSN, "s3cret")
	assert.Equal(t, "********", out.Auth.SigningKey)

	// the receiver keeps the real values
	assert.Equal(t, "postgres://app:s3cret@db/auth", cfg.Server.DSN)
}
