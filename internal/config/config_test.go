package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 20.0, cfg.Pricing.MinSpread, 0.001)
	assert.InDelta(t, 0.5, cfg.Pricing.HalfRatio, 0.001)
	assert.True(t, cfg.Pricing.SoftPass)
	assert.Equal(t, "assume_free", cfg.Pricing.UnknownShipping)
	assert.Equal(t, 300, cfg.Pricing.MinSales)
	assert.Equal(t, 3, cfg.Pricing.TopN)
	assert.Equal(t, 6*time.Hour, cfg.Pricing.QuoteCacheTTL)
	assert.Equal(t, "product-assets", cfg.Catalog.Bucket)
	assert.Equal(t, "ai_agent", cfg.Catalog.Source)
	assert.InDelta(t, 0.12, cfg.Windows.MarginFraction, 0.001)
	assert.InDelta(t, 0.9, cfg.Windows.AdmitRatio, 0.001)
	assert.Equal(t, []int{1080, 720, 540, 480, 360}, cfg.Encode.Widths)
	assert.Equal(t, 15, cfg.Encode.FPSTarget)
	assert.Equal(t, 8, cfg.Encode.FPSFloor)
	assert.Equal(t, "sierra2_4a", cfg.Encode.Dither)
	assert.Equal(t, "template", cfg.Copy.Provider)
	assert.NoError(t, cfg.Validate("price"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reels
log:
  level: debug
  format: console
pricing:
  min_spread: 15
  soft_pass: false
  unknown_shipping: reject
encode:
  size_cap_mb: 4
  widths: [720, 480]
batch:
  target_accepted: 5
  max_runtime: 30m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/reels", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 15.0, cfg.Pricing.MinSpread, 0.001)
	assert.False(t, cfg.Pricing.SoftPass)
	assert.Equal(t, "reject", cfg.Pricing.UnknownShipping)
	assert.Equal(t, []int{720, 480}, cfg.Encode.Widths)
	assert.Equal(t, int64(4*1024*1024), cfg.Encode.SizeCapBytes())
	assert.Equal(t, 5, cfg.Batch.TargetAccepted)
	assert.Equal(t, 30*time.Minute, cfg.Batch.MaxRuntime)
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("REEL_CATALOG_URL", "https://catalog.example")
	t.Setenv("REEL_CATALOG_ADMIN_TOKEN", "svc-token")
	t.Setenv("REEL_PRICING_MIN_SALES", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://catalog.example", cfg.Catalog.URL)
	assert.Equal(t, "svc-token", cfg.Catalog.AdminToken)
	assert.Equal(t, 100, cfg.Pricing.MinSales)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REEL_CATALOG_ANON_KEY=anon-from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("REEL_CATALOG_ANON_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anon-from-dotenv", cfg.Catalog.AnonKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("pricing: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFileExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "staging.yml")
	require.NoError(t, os.WriteFile(path, []byte("pricing:\n  min_spread: 25\nserver:\n  port: 9090\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, cfg.Pricing.MinSpread, 0.001)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Pricing.MinSales)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{URL: "https://catalog.example", AnonKey: "anon", AdminToken: "svc"},
		Pricing: PricingConfig{MinSpread: 20, HalfRatio: 0.5, UnknownShipping: "assume_free"},
		Encode:  EncodeConfig{Widths: []int{720}, FPSTarget: 15, FPSFloor: 8, SizeCapMB: 8},
		Windows: WindowsConfig{MinDuration: 2, MaxDuration: 5},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid import", mode: "import", mutate: func(c *Config) {}},
		{name: "password grant", mode: "import", mutate: func(c *Config) {
			c.Catalog.AdminToken = ""
			c.Catalog.Email = "ops@example.com"
			c.Catalog.Password = "pw"
		}},
		{name: "missing url", mode: "import", mutate: func(c *Config) { c.Catalog.URL = "" }, wantErr: "catalog.url is required"},
		{name: "missing anon key", mode: "import", mutate: func(c *Config) { c.Catalog.AnonKey = "" }, wantErr: "catalog.anon_key is required"},
		{name: "missing credentials", mode: "import", mutate: func(c *Config) {
			c.Catalog.AdminToken = ""
			c.Catalog.Email = "ops@example.com"
		}, wantErr: "catalog.admin_token"},
		{name: "price mode ignores catalog", mode: "price", mutate: func(c *Config) { c.Catalog = CatalogConfig{} }},
		{name: "negative spread", mode: "price", mutate: func(c *Config) { c.Pricing.MinSpread = -1 }, wantErr: "pricing.min_spread"},
		{name: "bad half ratio", mode: "price", mutate: func(c *Config) { c.Pricing.HalfRatio = 1.5 }, wantErr: "pricing.half_ratio"},
		{name: "bad shipping policy", mode: "price", mutate: func(c *Config) { c.Pricing.UnknownShipping = "guess" }, wantErr: "pricing.unknown_shipping"},
		{name: "floor above target", mode: "clips", mutate: func(c *Config) { c.Encode.FPSFloor = 20 }, wantErr: "encode.fps_floor"},
		{name: "zero cap", mode: "clips", mutate: func(c *Config) { c.Encode.SizeCapMB = 0 }, wantErr: "encode.size_cap_mb"},
		{name: "inverted durations", mode: "clips", mutate: func(c *Config) { c.Windows.MaxDuration = 1 }, wantErr: "windows durations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config: validation failed")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	err := InitLogger(LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
