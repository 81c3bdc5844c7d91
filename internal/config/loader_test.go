package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
server:
  addr: ":8081"
  roleHeader: "X-User-Role"
logging:
  level: debug
  format: console
filter:
  default: "/login"
  hostPrefix: "https://example.com"
  roleDefaults:
    guest: "/welcome"
  rules:
    - pattern: "^/admin"
      deny: [guest]
    - pattern: "^/posts/edit"
      allow: [editor]
cache:
  enabled: true
  ttl: "1m"
rateLimit:
  enabled: true
  requestsPerSecond: 100
  burst: 20
routes:
  - name: login
    path: /login
  - name: post-edit
    path: /posts/:id/edit
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "avaccess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfigFile(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, ":9091", cfg.Server.MetricsAddr)
	assert.Equal(t, "X-User-Role", cfg.Server.RoleHeader)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/login", cfg.Filter.Default)
	assert.Equal(t, "https://example.com", cfg.Filter.HostPrefix)
	assert.Equal(t, "/welcome", cfg.Filter.RoleDefaults["guest"])
	require.Len(t, cfg.Filter.Rules, 2)
	assert.Equal(t, []string{"guest"}, cfg.Filter.Rules[0].Deny)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "1m0s", cfg.Cache.TTL.Duration().String())
	assert.True(t, cfg.RateLimit.Enabled)
	require.Len(t, cfg.Routes, 2)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := Load(writeConfigFile(t, "filter: ["))
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		_, err := Load(writeConfigFile(t, "server:\n  addr: \":8080\"\n"))
		assert.ErrorIs(t, err, ErrMissingDefault)
	})
}
