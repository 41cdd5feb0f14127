package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	require.Equal(t, DefaultCountryCode, cfg.WhatsApp.DefaultCountryCode)
	require.Equal(t, DefaultReplyTimeoutSec, cfg.WhatsApp.ReplyTimeoutSec)
	require.Equal(t, DefaultChatModel, cfg.OpenAI.Model)
	require.Empty(t, cfg.Postgres.Host)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"

[whatsapp]
api_url = "https://gate.whapi.cloud"
webhook_secret = "s3cret"
reply_timeout_sec = 10

[postgres]
host = "db.internal"
password = "pw"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "s3cret", cfg.WhatsApp.WebhookSecret)
	require.Equal(t, 10, cfg.WhatsApp.ReplyTimeoutSec)
	require.Equal(t, "postgres://postgres:pw@db.internal:5432/fieldbot?sslmode=disable", cfg.Postgres.DSN())
	// untouched sections keep defaults
	require.Equal(t, "info", cfg.Log.Level)
}
