package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "POLYGLOT"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	Mirror     bool          `mapstructure:"mirror"`
	// Policy is the back-pressure policy for slow receivers: "drop" or "kick".
	Policy string `mapstructure:"policy"`

	Stream   StreamConfig   `mapstructure:"stream"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Speech   SpeechConfig   `mapstructure:"speech"`
}

type StreamConfig struct {
	SendBuffer    int           `mapstructure:"send_buffer"`
	ControlLimit  int           `mapstructure:"control_limit"`
	ControlWindow time.Duration `mapstructure:"control_window"`
}

type AudioConfig struct {
	SampleRate    int           `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	BitsPerSample int           `mapstructure:"bits_per_sample"`
	Window        time.Duration `mapstructure:"window"`
	MinDuration   time.Duration `mapstructure:"min_duration"`
	SilenceRMS    float64       `mapstructure:"silence_rms"`
	Discard       bool          `mapstructure:"discard"`
}

func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, Channels: a.Channels, BitsPerSample: a.BitsPerSample}
}

func (a AudioConfig) Segment() audio.SegmentConfig {
	return audio.SegmentConfig{
		Format:      a.Format(),
		Window:      a.Window,
		MinDuration: a.MinDuration,
		SilenceRMS:  a.SilenceRMS,
		Discard:     a.Discard,
	}
}

type PipelineConfig struct {
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	ConfidenceFloor float64       `mapstructure:"confidence_floor"`
	MaxInFlight     int           `mapstructure:"max_in_flight"`
}

type SpeechConfig struct {
	Backend  string `mapstructure:"backend"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	STTModel string `mapstructure:"stt_model"`
	MTModel  string `mapstructure:"mt_model"`
	TTSModel string `mapstructure:"tts_model"`
	Voice    string `mapstructure:"voice"`
	// Fallback appends the loopback synthesizer behind the cloud one.
	Fallback bool `mapstructure:"fallback"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("mirror", false)
	v.SetDefault("policy", "drop")

	v.SetDefault("stream.send_buffer", 64)
	v.SetDefault("stream.control_limit", 20)
	v.SetDefault("stream.control_window", "1s")

	v.SetDefault("audio.sample_rate", audio.DefaultFormat.SampleRate)
	v.SetDefault("audio.channels", audio.DefaultFormat.Channels)
	v.SetDefault("audio.bits_per_sample", audio.DefaultFormat.BitsPerSample)
	v.SetDefault("audio.window", "4s")
	v.SetDefault("audio.min_duration", "300ms")
	v.SetDefault("audio.silence_rms", 0.01)
	v.SetDefault("audio.discard", true)

	v.SetDefault("pipeline.stage_timeout", "15s")
	v.SetDefault("pipeline.confidence_floor", 0.0)
	v.SetDefault("pipeline.max_in_flight", 8)

	v.SetDefault("speech.backend", "loopback")
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.base_url", "")
	v.SetDefault("speech.stt_model", "whisper-1")
	v.SetDefault("speech.mt_model", "gpt-4o-mini")
	v.SetDefault("speech.tts_model", "tts-1")
	v.SetDefault("speech.voice", "alloy")
	v.SetDefault("speech.fallback", true)
}

// Load reads config/config.<CONFIG_ENV>.yaml, or path when set, then
// applies .env and POLYGLOT_* overrides. v may carry bound CLI flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("read .env")
	}

	v.SetConfigType("yaml")
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("speech.api_key", EnvPrefix+"_SPEECH_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("speech", cfg.Speech.Backend).Bool("mirror", cfg.Mirror).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if err := c.Audio.Segment().Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return errors.New("pipeline.stage_timeout must be positive")
	}
	if c.Pipeline.MaxInFlight < 1 {
		return errors.New("pipeline.max_in_flight must be at least 1")
	}
	if c.Pipeline.ConfidenceFloor < 0 || c.Pipeline.ConfidenceFloor > 1 {
		return fmt.Errorf("pipeline.confidence_floor %v out of range [0,1]", c.Pipeline.ConfidenceFloor)
	}
	switch c.Speech.Backend {
	case "loopback":
	case "openai":
		if c.Speech.APIKey == "" {
			return errors.New("speech.api_key (or OPENAI_API_KEY) is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown speech.backend %q", c.Speech.Backend)
	}
	switch c.Policy {
	case "drop", "kick":
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}
