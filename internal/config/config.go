// Package config provides configuration management for the rating arena.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	RateLimit   RateLimitConfig
	Matchmaking MatchmakingConfig
	Rating      RatingConfig
	Tier        TierConfig
	AntiCheat   AntiCheatConfig
	Paths       PathsConfig
	OptionLLM   OptionLLMConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
}

// DatabaseConfig holds SQLite-related configuration.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// RateLimitConfig holds per-caller battle-creation limits (§4.G).
type RateLimitConfig struct {
	MaxBattlesPerHour    int
	MinBattleInterval    time.Duration
	MaxConcurrentBattles int
	BattleCreationWindow time.Duration
	BattleTimeoutMinutes int
	GenerationTimeout    time.Duration
	CleanupInterval      time.Duration
	MaxAttemptsPerKey    int
	RetryDelay           time.Duration
	MaxBattleRetries     int
}

// MatchmakingConfig holds the tier/transition/cross-tier probability mix (§4.F).
type MatchmakingConfig struct {
	GlobalRandomMatchProbability float64
	TransitionZoneProbability    float64
	TransitionZoneSize           int
}

// RatingConfig holds Glicko-2 defaults and the batch period (§4.D).
type RatingConfig struct {
	UpdatePeriodMinutes int
	Tau                 float64
	DefaultMu           float64
	DefaultPhi          float64
	DefaultSigma        float64
}

// TierConfig holds the daily promotion/relegation parameters (§4.E).
type TierConfig struct {
	PromotionRelegationCount int
}

// AntiCheatConfig holds the vote anti-cheat windows and the salt prepended to
// caller ids before SHA-256 hashing (§4.H, §9).
type AntiCheatConfig struct {
	VoteTimeWindow      time.Duration
	UserRateLimitWindow time.Duration
	UserMaxVotesPerHour int
	VoteHashSalt        string
}

// PathsConfig holds filesystem locations for persisted state and config files (§6).
type PathsConfig struct {
	DataDir             string
	ConfigDir           string
	ModelsFile          string
	FixedPromptsFile    string
	ModelScoresFile     string
	PresetModelsFile    string
	PresetAnswersDir    string
	ModelPresetMapFile  string
	BackupDir           string
	MaxBackups          int
}

// OptionLLMConfig holds the external option-generation HTTP client settings.
type OptionLLMConfig struct {
	APIURL string
	APIKey string
	Model  string
}

// Load reads .env (if present) and environment variables into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("ARENA_PORT", 8585),
			Host:            getEnv("ARENA_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("ARENA_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("ARENA_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("ARENA_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORS:            getEnvAsBool("ARENA_CORS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Path:            getEnv("ARENA_DB_PATH", "data/arena.db"),
			MaxOpenConns:    getEnvAsInt("ARENA_DB_MAX_OPEN_CONNS", 1),
			MaxIdleConns:    getEnvAsInt("ARENA_DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: getEnvAsDuration("ARENA_DB_CONN_MAX_LIFETIME", time.Hour),
			BusyTimeout:     getEnvAsDuration("ARENA_DB_BUSY_TIMEOUT", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("ARENA_LOG_LEVEL", "info"),
			Format: getEnv("ARENA_LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			MaxBattlesPerHour:    getEnvAsInt("MAX_BATTLES_PER_HOUR", 20),
			MinBattleInterval:    getEnvAsDuration("MIN_BATTLE_INTERVAL", 10*time.Second),
			MaxConcurrentBattles: getEnvAsInt("MAX_CONCURRENT_BATTLES", 3),
			BattleCreationWindow: getEnvAsDuration("BATTLE_CREATION_WINDOW", time.Hour),
			BattleTimeoutMinutes: getEnvAsInt("BATTLE_TIMEOUT_MINUTES", 30),
			GenerationTimeout:    getEnvAsDuration("GENERATION_TIMEOUT_SECONDS", 60*time.Second),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL_SECONDS", 300*time.Second),
			MaxAttemptsPerKey:    getEnvAsInt("MAX_ATTEMPTS_PER_KEY", 3),
			RetryDelay:           getEnvAsDuration("RETRY_DELAY", time.Second),
			MaxBattleRetries:     getEnvAsInt("MAX_BATTLE_RETRIES", 3),
		},
		Matchmaking: MatchmakingConfig{
			GlobalRandomMatchProbability: getEnvAsFloat("GLOBAL_RANDOM_MATCH_PROBABILITY", 0.1),
			TransitionZoneProbability:    getEnvAsFloat("TRANSITION_ZONE_PROBABILITY", 0.2),
			TransitionZoneSize:           getEnvAsInt("TRANSITION_ZONE_SIZE", 3),
		},
		Rating: RatingConfig{
			UpdatePeriodMinutes: getEnvAsInt("RATING_UPDATE_PERIOD_MINUTES", 0),
			Tau:                 getEnvAsFloat("GLICKO2_TAU", 0.5),
			DefaultMu:           getEnvAsFloat("GLICKO2_DEFAULT_MU", 1500),
			DefaultPhi:          getEnvAsFloat("GLICKO2_DEFAULT_PHI", 350),
			DefaultSigma:        getEnvAsFloat("GLICKO2_DEFAULT_SIGMA", 0.06),
		},
		Tier: TierConfig{
			PromotionRelegationCount: getEnvAsInt("PROMOTION_RELEGATION_COUNT", 2),
		},
		AntiCheat: AntiCheatConfig{
			VoteTimeWindow:      getEnvAsDuration("VOTE_TIME_WINDOW", 5*time.Minute),
			UserRateLimitWindow: getEnvAsDuration("USER_RATE_LIMIT_WINDOW", time.Hour),
			UserMaxVotesPerHour: getEnvAsInt("USER_MAX_VOTES_PER_HOUR", 60),
			VoteHashSalt:        getEnv("VOTE_HASH_SALT", "change-me-in-production"),
		},
		Paths: PathsConfig{
			DataDir:            getEnv("ARENA_DATA_DIR", "data"),
			ConfigDir:          getEnv("ARENA_CONFIG_DIR", "config"),
			ModelsFile:         getEnv("ARENA_MODELS_FILE", "config/models.json"),
			FixedPromptsFile:   getEnv("ARENA_FIXED_PROMPTS_FILE", "config/fixed_prompts.json"),
			ModelScoresFile:    getEnv("ARENA_MODEL_SCORES_FILE", "config/model_scores.json"),
			PresetModelsFile:   getEnv("ARENA_PRESET_MODELS_FILE", "config/preset_models.json"),
			PresetAnswersDir:   getEnv("ARENA_PRESET_ANSWERS_DIR", "config/preset_answers"),
			ModelPresetMapFile: getEnv("ARENA_MODEL_PRESET_MAP_FILE", "config/model_preset_mapping.json"),
			BackupDir:          getEnv("ARENA_BACKUP_DIR", "data/backups"),
			MaxBackups:         getEnvAsInt("ARENA_MAX_BACKUPS", 24),
		},
		OptionLLM: OptionLLMConfig{
			APIURL: getEnv("OPTION_LLM_API_URL", ""),
			APIKey: getEnv("OPTION_LLM_API_KEY", ""),
			Model:  getEnv("OPTION_LLM_MODEL", ""),
		},
	}

	return cfg, nil
}

// Validate aborts startup on a configuration that cannot serve traffic.
// Model-count and prompt-count checks run in cmd/server once the config
// registry has loaded models.json/fixed_prompts.json, since Config itself
// only knows file paths.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("data directory %q is not creatable: %w", c.Paths.DataDir, err)
	}
	if err := os.MkdirAll(c.Paths.BackupDir, 0o755); err != nil {
		return fmt.Errorf("backup directory %q is not creatable: %w", c.Paths.BackupDir, err)
	}
	if c.Matchmaking.GlobalRandomMatchProbability < 0 || c.Matchmaking.GlobalRandomMatchProbability > 1 {
		return fmt.Errorf("GLOBAL_RANDOM_MATCH_PROBABILITY must be in [0,1]")
	}
	if c.Matchmaking.TransitionZoneProbability < 0 || c.Matchmaking.TransitionZoneProbability > 1 {
		return fmt.Errorf("TRANSITION_ZONE_PROBABILITY must be in [0,1]")
	}
	if c.RateLimit.MaxAttemptsPerKey < 1 {
		return fmt.Errorf("MAX_ATTEMPTS_PER_KEY must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		// arena_server.py accepts bare seconds for *_SECONDS env vars; mirror that.
		if seconds, serr := strconv.Atoi(valueStr); serr == nil {
			return time.Duration(seconds) * time.Second
		}
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	current := ""
	for _, ch := range valueStr {
		if ch == ',' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(ch)
		}
	}

	if current != "" {
		result = append(result, current)
	}

	return result
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
