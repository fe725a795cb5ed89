package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is built once by the
// CLI and handed to every component explicitly.
type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Media     MediaConfig     `yaml:"media" mapstructure:"media"`
	Windows   WindowsConfig   `yaml:"windows" mapstructure:"windows"`
	Encode    EncodeConfig    `yaml:"encode" mapstructure:"encode"`
	Copy      CopyConfig      `yaml:"copy" mapstructure:"copy"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CatalogConfig holds the catalog backend endpoint and credentials.
type CatalogConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	AnonKey     string `yaml:"anon_key" mapstructure:"anon_key"`
	AdminToken  string `yaml:"admin_token" mapstructure:"admin_token"`
	Email       string `yaml:"email" mapstructure:"email"`
	Password    string `yaml:"password" mapstructure:"password"`
	Bucket      string `yaml:"bucket" mapstructure:"bucket"`
	Source      string `yaml:"source" mapstructure:"source"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PricingConfig configures quote resolution and the pricing rule.
type PricingConfig struct {
	MinSpread        float64       `yaml:"min_spread" mapstructure:"min_spread"`
	HalfRatio        float64       `yaml:"half_ratio" mapstructure:"half_ratio"`
	SoftPass         bool          `yaml:"soft_pass" mapstructure:"soft_pass"`
	UnknownShipping  string        `yaml:"unknown_shipping" mapstructure:"unknown_shipping"`
	MinSales         int           `yaml:"min_sales" mapstructure:"min_sales"`
	TopN             int           `yaml:"top_n" mapstructure:"top_n"`
	MaxDetailFetches int           `yaml:"max_detail_fetches" mapstructure:"max_detail_fetches"`
	SearchURL        string        `yaml:"search_url" mapstructure:"search_url"`
	ItemURL          string        `yaml:"item_url" mapstructure:"item_url"`
	RRPMultiplier    float64       `yaml:"rrp_multiplier" mapstructure:"rrp_multiplier"`
	QuoteCacheTTL    time.Duration `yaml:"quote_cache_ttl" mapstructure:"quote_cache_ttl"`
}

// FetchConfig configures the HTML fetcher.
type FetchConfig struct {
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond       float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst               int     `yaml:"burst" mapstructure:"burst"`
	BreakerFailures     int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// MediaConfig locates the external media tools.
type MediaConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	YtDLPPath   string `yaml:"ytdlp_path" mapstructure:"ytdlp_path"`
	WorkDir     string `yaml:"work_dir" mapstructure:"work_dir"`
	StillSize   int    `yaml:"still_size" mapstructure:"still_size"`
}

// WindowsConfig configures clean-window detection.
type WindowsConfig struct {
	MarginFraction float64 `yaml:"margin_fraction" mapstructure:"margin_fraction"`
	SampleStep     float64 `yaml:"sample_step" mapstructure:"sample_step"`
	CleanThreshold float64 `yaml:"clean_threshold" mapstructure:"clean_threshold"`
	AdmitRatio     float64 `yaml:"admit_ratio" mapstructure:"admit_ratio"`
	Spacing        float64 `yaml:"spacing" mapstructure:"spacing"`
	MinDuration    float64 `yaml:"min_duration" mapstructure:"min_duration"`
	MaxDuration    float64 `yaml:"max_duration" mapstructure:"max_duration"`
	Count          int     `yaml:"count" mapstructure:"count"`
	AnalysisWidth  int     `yaml:"analysis_width" mapstructure:"analysis_width"`
	Scorer         string  `yaml:"scorer" mapstructure:"scorer"`
}

// EncodeConfig configures the budgeted clip encoder.
type EncodeConfig struct {
	Aspect    string  `yaml:"aspect" mapstructure:"aspect"`
	Widths    []int   `yaml:"widths" mapstructure:"widths"`
	FPSTarget int     `yaml:"fps_target" mapstructure:"fps_target"`
	FPSFloor  int     `yaml:"fps_floor" mapstructure:"fps_floor"`
	FPSStep   int     `yaml:"fps_step" mapstructure:"fps_step"`
	SizeCapMB float64 `yaml:"size_cap_mb" mapstructure:"size_cap_mb"`
	Dither    string  `yaml:"dither" mapstructure:"dither"`
	PadColor  string  `yaml:"pad_color" mapstructure:"pad_color"`
}

// CopyConfig selects the ad copy backend.
type CopyConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// BatchConfig bounds a single import run.
type BatchConfig struct {
	ManifestDir    string        `yaml:"manifest_dir" mapstructure:"manifest_dir"`
	TargetAccepted int           `yaml:"target_accepted" mapstructure:"target_accepted"`
	MaxRuntime     time.Duration `yaml:"max_runtime" mapstructure:"max_runtime"`
	Force          bool          `yaml:"force" mapstructure:"force"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, the config file and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Secrets have no defaults but must be bound so AutomaticEnv sees them
	// during Unmarshal.
	for _, key := range []string{
		"catalog.url", "catalog.anon_key", "catalog.admin_token",
		"catalog.email", "catalog.password",
		"openai.key", "anthropic.key", "store.database_url",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("catalog.bucket", "product-assets")
	v.SetDefault("catalog.source", "ai_agent")
	v.SetDefault("catalog.timeout_secs", 120)

	v.SetDefault("pricing.min_spread", 20.0)
	v.SetDefault("pricing.half_ratio", 0.5)
	v.SetDefault("pricing.soft_pass", true)
	v.SetDefault("pricing.unknown_shipping", "assume_free")
	v.SetDefault("pricing.min_sales", 300)
	v.SetDefault("pricing.top_n", 3)
	v.SetDefault("pricing.max_detail_fetches", 5)
	v.SetDefault("pricing.search_url", "https://www.aliexpress.com/wholesale?SortType=total_tranpro_desc&SearchText=%s")
	v.SetDefault("pricing.item_url", "https://www.aliexpress.com/item/%s.html")
	v.SetDefault("pricing.rrp_multiplier", 3.0)
	v.SetDefault("pricing.quote_cache_ttl", 6*time.Hour)

	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.breaker_failures", 5)
	v.SetDefault("fetch.breaker_cooldown_secs", 60)

	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.ytdlp_path", "yt-dlp")
	v.SetDefault("media.still_size", 1080)

	v.SetDefault("windows.margin_fraction", 0.12)
	v.SetDefault("windows.sample_step", 0.5)
	v.SetDefault("windows.clean_threshold", 0.35)
	v.SetDefault("windows.admit_ratio", 0.9)
	v.SetDefault("windows.spacing", 3.0)
	v.SetDefault("windows.min_duration", 2.0)
	v.SetDefault("windows.max_duration", 5.0)
	v.SetDefault("windows.count", 3)
	v.SetDefault("windows.analysis_width", 160)
	v.SetDefault("windows.scorer", "edge_blob")

	v.SetDefault("encode.aspect", "square")
	v.SetDefault("encode.widths", []int{1080, 720, 540, 480, 360})
	v.SetDefault("encode.fps_target", 15)
	v.SetDefault("encode.fps_floor", 8)
	v.SetDefault("encode.fps_step", 2)
	v.SetDefault("encode.size_cap_mb", 8.0)
	v.SetDefault("encode.dither", "sierra2_4a")
	v.SetDefault("encode.pad_color", "0xF5F5F5")

	v.SetDefault("copy.provider", "template")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	v.SetDefault("batch.manifest_dir", "products")
	v.SetDefault("batch.target_accepted", 0)
	v.SetDefault("batch.max_runtime", 0)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the configuration required by mode. Mode "import" needs
// catalog credentials; "price" and "clips" need none.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Pricing.MinSpread < 0 {
		problems = append(problems, "pricing.min_spread must be >= 0")
	}
	if c.Pricing.HalfRatio <= 0 || c.Pricing.HalfRatio > 1 {
		problems = append(problems, "pricing.half_ratio must be in (0, 1]")
	}
	switch c.Pricing.UnknownShipping {
	case "assume_free", "reject":
	default:
		problems = append(problems, "pricing.unknown_shipping must be assume_free or reject")
	}
	if c.Encode.FPSFloor <= 0 || c.Encode.FPSFloor > c.Encode.FPSTarget {
		problems = append(problems, "encode.fps_floor must be in [1, fps_target]")
	}
	if c.Encode.SizeCapMB <= 0 {
		problems = append(problems, "encode.size_cap_mb must be > 0")
	}
	if len(c.Encode.Widths) == 0 {
		problems = append(problems, "encode.widths must not be empty")
	}
	if c.Windows.MinDuration <= 0 || c.Windows.MaxDuration < c.Windows.MinDuration {
		problems = append(problems, "windows durations must satisfy 0 < min_duration <= max_duration")
	}

	if mode == "import" {
		if c.Catalog.URL == "" {
			problems = append(problems, "catalog.url is required")
		}
		if c.Catalog.AnonKey == "" {
			problems = append(problems, "catalog.anon_key is required")
		}
		if c.Catalog.AdminToken == "" && (c.Catalog.Email == "" || c.Catalog.Password == "") {
			problems = append(problems, "catalog.admin_token or catalog.email and catalog.password are required")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SizeCapBytes returns the clip byte budget.
func (e EncodeConfig) SizeCapBytes() int64 {
	return int64(e.SizeCapMB * 1024 * 1024)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
