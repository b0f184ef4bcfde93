package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Level maps the configured log level onto slog; unknown values fall back
// to info.
func (t TelemetryConfig) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(t.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Audio       AudioConfig     `yaml:"audio"`
	STT         STTConfig       `yaml:"stt"`
	Delivery    DeliveryConfig  `yaml:"delivery"`
	History     HistoryConfig   `yaml:"history"`
	Bus         BusConfig       `yaml:"bus"`
	Translate   TranslateConfig `yaml:"translate"`
}

type AudioConfig struct {
	Mode         string `yaml:"mode"` // device, file
	Device       string `yaml:"device"`
	FilePath     string `yaml:"file_path"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	FrameSamples int    `yaml:"frame_samples"`
	QueueDepth   int    `yaml:"queue_depth"`
}

type STTConfig struct {
	Mode                 string `yaml:"mode"` // mock, vosk, exec
	ServerURL            string `yaml:"server_url"`
	Command              string `yaml:"command"`
	ModelPath            string `yaml:"model_path"`
	SpeakerID            string `yaml:"speaker_id"`
	PartialMinIntervalMS int    `yaml:"partial_min_interval_ms"`
	ForceFinalAfterMS    int    `yaml:"force_final_after_ms"`
}

type DeliveryConfig struct {
	DrainIntervalMS   int `yaml:"drain_interval_ms"`
	MaxEventsPerDrain int `yaml:"max_events_per_drain"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TranslateConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "scribe-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Audio: AudioConfig{
			Mode:         "device",
			SampleRate:   16000,
			Channels:     1,
			FrameSamples: 3200,
			QueueDepth:   32,
		},
		STT: STTConfig{
			Mode:                 "mock",
			ServerURL:            "ws://localhost:2700",
			SpeakerID:            "S1",
			PartialMinIntervalMS: 80,
			ForceFinalAfterMS:    0,
		},
		Delivery: DeliveryConfig{
			DrainIntervalMS:   50,
			MaxEventsPerDrain: 10,
		},
		History: HistoryConfig{
			Path:          "./data/scribe-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Translate: TranslateConfig{
			Enabled:    false,
			Endpoint:   "https://translate.argosopentech.com/translate",
			SourceLang: "pt",
			TargetLang: "en",
			TimeoutMS:  10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SCRIBE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Audio.Mode, "SCRIBE_AUDIO_MODE")
	overrideString(&cfg.Audio.Device, "SCRIBE_AUDIO_DEVICE")
	overrideString(&cfg.Audio.FilePath, "SCRIBE_AUDIO_FILE_PATH")
	overrideInt(&cfg.Audio.SampleRate, "SCRIBE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "SCRIBE_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameSamples, "SCRIBE_AUDIO_FRAME_SAMPLES")
	overrideInt(&cfg.Audio.QueueDepth, "SCRIBE_AUDIO_QUEUE_DEPTH")
	overrideString(&cfg.STT.Mode, "SCRIBE_STT_MODE")
	overrideString(&cfg.STT.ServerURL, "SCRIBE_STT_SERVER_URL")
	overrideString(&cfg.STT.Command, "SCRIBE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "SCRIBE_STT_MODEL_PATH")
	overrideString(&cfg.STT.SpeakerID, "SCRIBE_STT_SPEAKER_ID")
	overrideInt(&cfg.STT.PartialMinIntervalMS, "SCRIBE_STT_PARTIAL_MIN_INTERVAL_MS")
	overrideInt(&cfg.STT.ForceFinalAfterMS, "SCRIBE_STT_FORCE_FINAL_AFTER_MS")
	overrideInt(&cfg.Delivery.DrainIntervalMS, "SCRIBE_DELIVERY_DRAIN_INTERVAL_MS")
	overrideInt(&cfg.Delivery.MaxEventsPerDrain, "SCRIBE_DELIVERY_MAX_EVENTS_PER_DRAIN")
	overrideString(&cfg.History.Path, "SCRIBE_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "SCRIBE_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "SCRIBE_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "SCRIBE_HISTORY_MAX_SESSIONS")
	overrideBool(&cfg.History.VacuumOnStart, "SCRIBE_HISTORY_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "SCRIBE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Translate.Enabled, "SCRIBE_TRANSLATE_ENABLED")
	overrideString(&cfg.Translate.Endpoint, "SCRIBE_TRANSLATE_ENDPOINT")
	overrideString(&cfg.Translate.SourceLang, "SCRIBE_TRANSLATE_SOURCE_LANG")
	overrideString(&cfg.Translate.TargetLang, "SCRIBE_TRANSLATE_TARGET_LANG")
	overrideInt(&cfg.Translate.TimeoutMS, "SCRIBE_TRANSLATE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Audio.Mode {
	case "device":
		// empty device id selects the default capture device
	case "file":
		if cfg.Audio.FilePath == "" {
			return errors.New("audio.file_path must be set when mode=file")
		}
	default:
		return errors.New("audio.mode must be one of device|file")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1 (mono capture)")
	}
	if cfg.Audio.FrameSamples <= 0 {
		return errors.New("audio.frame_samples must be positive")
	}
	if cfg.Audio.QueueDepth <= 0 {
		return errors.New("audio.queue_depth must be positive")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "vosk":
		if cfg.STT.ServerURL == "" {
			return errors.New("stt.server_url must be set when mode=vosk")
		}
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|vosk|exec")
	}
	if cfg.STT.SpeakerID == "" {
		return errors.New("stt.speaker_id must not be empty")
	}
	if cfg.STT.PartialMinIntervalMS < 0 {
		return errors.New("stt.partial_min_interval_ms must be >= 0")
	}
	if cfg.STT.ForceFinalAfterMS < 0 {
		return errors.New("stt.force_final_after_ms must be >= 0")
	}
	if cfg.Delivery.DrainIntervalMS <= 0 {
		return errors.New("delivery.drain_interval_ms must be positive")
	}
	if cfg.Delivery.MaxEventsPerDrain <= 0 {
		return errors.New("delivery.max_events_per_drain must be positive")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Translate.Enabled {
		if cfg.Translate.Endpoint == "" {
			return errors.New("translate.endpoint must be set when translation is enabled")
		}
		if cfg.Translate.TargetLang == "" {
			return errors.New("translate.target_lang must be set when translation is enabled")
		}
	}
	return nil
}
