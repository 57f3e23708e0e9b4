package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signscribe/internal/domain"
)

// Config stores runtime configuration for the recorder and its backends.
type Config struct {
	API     APIConfig
	Video   VideoConfig
	Session SessionConfig
	History HistoryConfig
	Speech  SpeechConfig
}

type APIConfig struct {
	BaseURL   string
	ModelSize domain.ModelSize
	Timeout   time.Duration
}

type VideoConfig struct {
	RecorderCommand string
	InputFormat     string
	Device          string
	Resolution      domain.Resolution
	FrameRate       int
}

type SessionConfig struct {
	ChunkSize int
}

type HistoryConfig struct {
	Path     string
	UserID   string
	UserName string
}

type SpeechConfig struct {
	Command string
}

// Load resolves configuration from an optional .env file, environment
// variables and sensible defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	defaultHistory := filepath.Join(firstNonEmpty(os.Getenv("XDG_DATA_HOME"), filepath.Join(home, ".local", "share")), "signscribe", "history.db")

	modelSize, err := domain.ParseModelSize(envOrDefault("SIGNSCRIBE_MODEL_SIZE", string(domain.DefaultModelSize)))
	if err != nil {
		modelSize = domain.DefaultModelSize
	}
	resolution, err := ParseResolution(envOrDefault("SIGNSCRIBE_VIDEO_RESOLUTION", "720p"))
	if err != nil {
		resolution = domain.Resolution720p
	}
	userID := firstNonEmpty(os.Getenv("SIGNSCRIBE_USER_ID"), os.Getenv("USER"), "local")

	cfg := Config{
		API: APIConfig{
			BaseURL:   strings.TrimRight(envOrDefault("SIGNSCRIBE_API_BASE", "http://127.0.0.1:8000"), "/"),
			ModelSize: modelSize,
			Timeout:   time.Duration(envOrDefaultInt("SIGNSCRIBE_HTTP_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Video: VideoConfig{
			RecorderCommand: envOrDefault("SIGNSCRIBE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SIGNSCRIBE_VIDEO_INPUT_FORMAT", "v4l2"),
			Device:          strings.TrimSpace(os.Getenv("SIGNSCRIBE_VIDEO_DEVICE")),
			Resolution:      resolution,
			FrameRate:       envOrDefaultInt("SIGNSCRIBE_FRAME_RATE", 30),
		},
		Session: SessionConfig{
			ChunkSize: envOrDefaultInt("SIGNSCRIBE_CHUNK_SIZE", 32*1024),
		},
		History: HistoryConfig{
			Path:     envOrDefault("SIGNSCRIBE_HISTORY_DB", defaultHistory),
			UserID:   userID,
			UserName: firstNonEmpty(os.Getenv("SIGNSCRIBE_USER_NAME"), userID),
		},
		Speech: SpeechConfig{
			Command: envOrDefault("SIGNSCRIBE_TTS_COMMAND", "espeak-ng"),
		},
	}

	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.Video.FrameRate <= 0 {
		cfg.Video.FrameRate = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 32 * 1024
	}

	return cfg, nil
}

// ParseResolution accepts "720p" style names and "1280x720" sizes, limited to
// the supported presets.
func ParseResolution(value string) (domain.Resolution, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, res := range domain.SupportedResolutions() {
		if value == strconv.Itoa(res.Height)+"p" || value == fmt.Sprintf("%dx%d", res.Width, res.Height) {
			return res, nil
		}
	}
	return domain.Resolution{}, fmt.Errorf("unsupported resolution %q", value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
