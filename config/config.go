// slidecast/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE"`

	// Encoder
	FFBin            string        `mapstructure:"FF_BIN"`
	FFTimeout        time.Duration `mapstructure:"FF_TIMEOUT"`
	FFVideoArgs      string        `mapstructure:"FF_VIDEO_ARGS"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`

	// Assets
	FetchTimeout time.Duration `mapstructure:"FETCH_TIMEOUT"`
	MaxInputSize int64         `mapstructure:"MAX_INPUT_SIZE"`

	// Local state
	MediaDir        string        `mapstructure:"MEDIA_DIR"`
	CheckpointDir   string        `mapstructure:"CHECKPOINT_DIR"`
	WorkdirLifetime time.Duration `mapstructure:"WORKDIR_LIFETIME"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`

	// External services
	GeminiAPIKey       string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel        string `mapstructure:"GEMINI_MODEL"`
	ElevenLabsAPIKey   string `mapstructure:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL  string `mapstructure:"ELEVENLABS_BASE_URL"`
	GCSBucket          string `mapstructure:"GCS_BUCKET"`
	GCSCredentialsFile string `mapstructure:"GCS_CREDENTIALS_FILE"`
	GCSPublicBase      string `mapstructure:"GCS_PUBLIC_BASE"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	// .env.local is optional and never overrides variables already set.
	_ = godotenv.Load(".env.local")

	vp := viper.New()

	vp.SetDefault("PORT", "8000")
	vp.SetDefault("BASE", "")
	vp.SetDefault("FF_BIN", "")
	vp.SetDefault("FF_TIMEOUT", "30m")
	vp.SetDefault("FF_VIDEO_ARGS", "")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0B")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("FETCH_TIMEOUT", "60s")
	vp.SetDefault("MAX_INPUT_SIZE", "100MB")
	vp.SetDefault("MEDIA_DIR", "media")
	vp.SetDefault("CHECKPOINT_DIR", "")
	vp.SetDefault("WORKDIR_LIFETIME", "6h")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("GEMINI_API_KEY", "")
	vp.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	vp.SetDefault("ELEVENLABS_API_KEY", "")
	vp.SetDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1")
	vp.SetDefault("GCS_BUCKET", "")
	vp.SetDefault("GCS_CREDENTIALS_FILE", "")
	vp.SetDefault("GCS_PUBLIC_BASE", "https://storage.googleapis.com")

	vp.SetConfigName("slidecast_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/slidecast/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("SLIDECAST")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if cfg.CheckpointDir == "" {
		cfg.CheckpointDir = strings.TrimSuffix(cfg.MediaDir, "/") + "/checkpoints"
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &cfg, nil
}
