package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, SecurityPublic, cfg.Search.SecurityLevel)
	assert.Equal(t, int64(10<<20), cfg.Image.MaxBytes)
	assert.True(t, cfg.Session.Watch)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ISPL_API_URL", "")
	t.Setenv("ISPL_TOKEN_FILE", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://policies.example.com"
	cfg.Search.SecurityLevel = SecurityClosed
	cfg.UI.Theme = "light"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://policies.example.com", loaded.API.BaseURL)
	assert.Equal(t, SecurityClosed, loaded.Search.SecurityLevel)
	assert.Equal(t, "light", loaded.UI.Theme)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ISPL_API_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API, cfg.API)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ISPL_API_URL", "http://10.0.0.5:9000")
	t.Setenv("ISPL_TOKEN_FILE", "/tmp/ispl-token.json")
	t.Setenv("ISPL_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9000", cfg.API.BaseURL)
	assert.Equal(t, "/tmp/ispl-token.json", cfg.Session.TokenFile)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("ISPL_API_URL", "")
	tests := []struct {
		name string
		yaml string
	}{
		{"relative url", "api:\n  base_url: /api\n"},
		{"bad security level", "search:\n  security_level: secret\n"},
		{"zero limit", "search:\n  limit: 0\n"},
		{"malformed yaml", "api: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetUploadTimeout())
	assert.Equal(t, 2*time.Minute, cfg.GetAnalyzeTimeout())

	cfg.API.Timeout = "soon"
	cfg.API.UploadTimeout = "-1s"
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetUploadTimeout())
}

func TestValidSecurityLevel(t *testing.T) {
	for _, lvl := range []string{"public", "semi_closed", "closed"} {
		assert.True(t, ValidSecurityLevel(lvl), lvl)
	}
	assert.False(t, ValidSecurityLevel(""))
	assert.False(t, ValidSecurityLevel("PUBLIC"))
}
