package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the engine listens on.
	DefaultAddr = ":43180"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 128

	// DefaultTickRateHz is the fixed simulation frequency for every room.
	DefaultTickRateHz = 20
	// DefaultGameSpeed scales every time-based gameplay threshold.
	DefaultGameSpeed = 1.0
	// DefaultMapSize is the territory count requested from the map generator.
	DefaultMapSize = 48
	// DefaultAICount is how many bot players fill unclaimed slots.
	DefaultAICount = 3
	// DefaultMaxPlayers caps the per-room roster, humans and bots combined.
	DefaultMaxPlayers = 8

	// DefaultKeyframeInterval is how many ticks pass between full snapshots.
	DefaultKeyframeInterval = 20
	// DefaultSnapshotCodec compresses snapshot payloads; empty disables compression.
	DefaultSnapshotCodec = "snappy"

	// DefaultCommandRate bounds sustained commands per second per client.
	DefaultCommandRate = 8.0
	// DefaultCommandBurst bounds the command burst size per client.
	DefaultCommandBurst = 16

	// DefaultReplayDumpWindow bounds how frequently replay dump triggers may be requested.
	DefaultReplayDumpWindow = time.Minute
	// DefaultReplayDumpBurst sets how many replay dump requests may be made per window.
	DefaultReplayDumpBurst = 1

	// DefaultLogLevel controls verbosity for engine logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "engine.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the engine service.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	AdminToken      string
	AuthSecret      string

	TickRateHz int
	GameSpeed  float64
	MapSize    int
	AICount    int
	MaxPlayers int

	KeyframeInterval int
	SnapshotCodec    string

	CommandRate  float64
	CommandBurst int

	BalancePath      string
	ReplayRoot       string
	ReplayDumpWindow time.Duration
	ReplayDumpBurst  int

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the engine configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("STARLANE_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("STARLANE_ALLOWED_ORIGINS")),
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		AdminToken:       strings.TrimSpace(os.Getenv("STARLANE_ADMIN_TOKEN")),
		AuthSecret:       strings.TrimSpace(os.Getenv("STARLANE_AUTH_SECRET")),
		TickRateHz:       DefaultTickRateHz,
		GameSpeed:        DefaultGameSpeed,
		MapSize:          DefaultMapSize,
		AICount:          DefaultAICount,
		MaxPlayers:       DefaultMaxPlayers,
		KeyframeInterval: DefaultKeyframeInterval,
		SnapshotCodec:    strings.TrimSpace(getString("STARLANE_SNAPSHOT_CODEC", DefaultSnapshotCodec)),
		CommandRate:      DefaultCommandRate,
		CommandBurst:     DefaultCommandBurst,
		BalancePath:      strings.TrimSpace(os.Getenv("STARLANE_BALANCE_PATH")),
		ReplayRoot:       strings.TrimSpace(os.Getenv("STARLANE_REPLAY_ROOT")),
		ReplayDumpWindow: DefaultReplayDumpWindow,
		ReplayDumpBurst:  DefaultReplayDumpBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("STARLANE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("STARLANE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("STARLANE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_TICK_RATE_HZ")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 240 {
			problems = append(problems, fmt.Sprintf("STARLANE_TICK_RATE_HZ must be an integer in (0,240], got %q", raw))
		} else {
			cfg.TickRateHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_GAME_SPEED")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_GAME_SPEED must be a positive number, got %q", raw))
		} else {
			cfg.GameSpeed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_MAP_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 2 {
			problems = append(problems, fmt.Sprintf("STARLANE_MAP_SIZE must be an integer >= 2, got %q", raw))
		} else {
			cfg.MapSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_AI_COUNT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_AI_COUNT must be a non-negative integer, got %q", raw))
		} else {
			cfg.AICount = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_MAX_PLAYERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 2 {
			problems = append(problems, fmt.Sprintf("STARLANE_MAX_PLAYERS must be an integer >= 2, got %q", raw))
		} else {
			cfg.MaxPlayers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_KEYFRAME_INTERVAL")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_KEYFRAME_INTERVAL must be a positive integer, got %q", raw))
		} else {
			cfg.KeyframeInterval = value
		}
	}

	switch cfg.SnapshotCodec {
	case "", "gzip", "snappy", "lz4":
	default:
		problems = append(problems, fmt.Sprintf("STARLANE_SNAPSHOT_CODEC must be one of gzip, snappy, lz4 or empty, got %q", cfg.SnapshotCodec))
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_COMMAND_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_COMMAND_RATE must be a positive number, got %q", raw))
		} else {
			cfg.CommandRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_COMMAND_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_COMMAND_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.CommandBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_REPLAY_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_REPLAY_DUMP_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReplayDumpWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_REPLAY_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_REPLAY_DUMP_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayDumpBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("STARLANE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARLANE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("STARLANE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.AICount >= cfg.MaxPlayers {
		problems = append(problems, fmt.Sprintf("STARLANE_AI_COUNT (%d) must leave at least one human slot below STARLANE_MAX_PLAYERS (%d)", cfg.AICount, cfg.MaxPlayers))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
