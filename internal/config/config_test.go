package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":9090"
db:
  dsn: "postgres://localhost/pos_test"
provider:
  base_url: "https://api.example.com"
  webhook_secret: "whsec_file"
location:
  id: "downtown"
printing:
  agent_base_url: "http://localhost:9100"
  printers:
    kitchen:
      role: station
      enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "postgres://localhost/pos_test", cfg.DB.DSN)
	require.Equal(t, "whsec_file", cfg.Provider.WebhookSecret)
	require.Equal(t, "usd", cfg.Provider.Currency)
	require.Equal(t, "downtown", cfg.Location.ID)
	require.Equal(t, "station", cfg.Printing.Printers["kitchen"].Role)
	require.True(t, cfg.Printing.Printers["kitchen"].Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/pos")
	t.Setenv("PROVIDER_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("LOCATION_ID", "airport")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, "postgres://env/pos", cfg.DB.DSN)
	require.Equal(t, "whsec_env", cfg.Provider.WebhookSecret)
	require.Equal(t, "airport", cfg.Location.ID)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `
db:
  dsn: "postgres://localhost/pos_test"
location:
  id: "x"
`))
	require.ErrorContains(t, err, "webhook_secret")

	_, err = Load(writeConfig(t, sampleYAML+`
    bad:
      role: laser
      enabled: true
`))
	require.ErrorContains(t, err, "unknown role")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
