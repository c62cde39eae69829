package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_id: 99
  run_mode: longpoll
logging:
  level: info
  format: kv
database:
  host: localhost
  port: "5432"
  user: insta
  name: instabridge
http:
  addr: ":9000"
facebook:
  app_id: "fb-app"
  app_secret: "fb-secret"
  redirect_uri: "https://example.com/auth/instagram"
linking:
  state_ttl_minutes: 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.Core.Telegram.Token)
	require.EqualValues(t, 99, cfg.Core.Telegram.AdminID)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, "fb-app", cfg.Facebook.AppID)
	require.Equal(t, "https://example.com/auth/instagram", cfg.Facebook.RedirectURI)
	require.Equal(t, 10*time.Minute, cfg.Linking.StateTTL())

	// Defaults filled by validation.
	require.NotEmpty(t, cfg.Facebook.AuthURL)
	require.Same(t, &cfg.Core, cfg.CoreConfig())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FACEBOOK_APP_SECRET", "from-env")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Facebook.AppSecret)
}

func TestLoadRejectsMissingFacebookCredentials(t *testing.T) {
	body := `
telegram:
  token: "123:abc"
facebook:
  app_id: "fb-app"
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	require.Contains(t, err.Error(), "app_secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
