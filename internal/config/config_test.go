package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	envVars := []string{
		"ARENA_PORT", "ARENA_HOST", "ARENA_READ_TIMEOUT", "ARENA_WRITE_TIMEOUT", "ARENA_SHUTDOWN_TIMEOUT", "ARENA_CORS_ENABLED",
		"ARENA_DB_PATH", "ARENA_DB_MAX_OPEN_CONNS", "ARENA_DB_MAX_IDLE_CONNS", "ARENA_DB_CONN_MAX_LIFETIME", "ARENA_DB_BUSY_TIMEOUT",
		"ARENA_LOG_LEVEL", "ARENA_LOG_FORMAT",
		"MAX_BATTLES_PER_HOUR", "MIN_BATTLE_INTERVAL", "MAX_CONCURRENT_BATTLES", "BATTLE_CREATION_WINDOW",
		"BATTLE_TIMEOUT_MINUTES", "GENERATION_TIMEOUT_SECONDS", "CLEANUP_INTERVAL_SECONDS",
		"MAX_ATTEMPTS_PER_KEY", "RETRY_DELAY", "MAX_BATTLE_RETRIES",
		"GLOBAL_RANDOM_MATCH_PROBABILITY", "TRANSITION_ZONE_PROBABILITY", "TRANSITION_ZONE_SIZE",
		"RATING_UPDATE_PERIOD_MINUTES", "GLICKO2_TAU", "GLICKO2_DEFAULT_MU", "GLICKO2_DEFAULT_PHI", "GLICKO2_DEFAULT_SIGMA",
		"PROMOTION_RELEGATION_COUNT",
		"VOTE_TIME_WINDOW", "USER_RATE_LIMIT_WINDOW", "USER_MAX_VOTES_PER_HOUR", "VOTE_HASH_SALT",
		"ARENA_DATA_DIR", "ARENA_CONFIG_DIR", "ARENA_MODELS_FILE", "ARENA_FIXED_PROMPTS_FILE", "ARENA_MODEL_SCORES_FILE",
		"ARENA_PRESET_MODELS_FILE", "ARENA_PRESET_ANSWERS_DIR", "ARENA_MODEL_PRESET_MAP_FILE", "ARENA_BACKUP_DIR", "ARENA_MAX_BACKUPS",
		"OPTION_LLM_API_URL", "OPTION_LLM_API_KEY", "OPTION_LLM_MODEL",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 8585, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.CORS)

	assert.Equal(t, "data/arena.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 20, cfg.RateLimit.MaxBattlesPerHour)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.MinBattleInterval)
	assert.Equal(t, 3, cfg.RateLimit.MaxConcurrentBattles)
	assert.Equal(t, 3, cfg.RateLimit.MaxAttemptsPerKey)

	assert.Equal(t, 0.1, cfg.Matchmaking.GlobalRandomMatchProbability)
	assert.Equal(t, 0.2, cfg.Matchmaking.TransitionZoneProbability)
	assert.Equal(t, 3, cfg.Matchmaking.TransitionZoneSize)

	assert.Equal(t, 0, cfg.Rating.UpdatePeriodMinutes)
	assert.Equal(t, 0.5, cfg.Rating.Tau)
	assert.Equal(t, 1500.0, cfg.Rating.DefaultMu)
	assert.Equal(t, 350.0, cfg.Rating.DefaultPhi)
	assert.Equal(t, 0.06, cfg.Rating.DefaultSigma)

	assert.Equal(t, 2, cfg.Tier.PromotionRelegationCount)

	assert.Equal(t, 5*time.Minute, cfg.AntiCheat.VoteTimeWindow)
	assert.Equal(t, 60, cfg.AntiCheat.UserMaxVotesPerHour)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()

	os.Setenv("ARENA_PORT", "9090")
	os.Setenv("ARENA_HOST", "127.0.0.1")
	os.Setenv("ARENA_CORS_ENABLED", "false")
	os.Setenv("MAX_BATTLES_PER_HOUR", "50")
	os.Setenv("MIN_BATTLE_INTERVAL", "30s")
	os.Setenv("GLOBAL_RANDOM_MATCH_PROBABILITY", "0.3")
	os.Setenv("RATING_UPDATE_PERIOD_MINUTES", "60")
	os.Setenv("PROMOTION_RELEGATION_COUNT", "5")
	os.Setenv("LOG_LEVEL", "debug")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.False(t, cfg.Server.CORS)
	assert.Equal(t, 50, cfg.RateLimit.MaxBattlesPerHour)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.MinBattleInterval)
	assert.Equal(t, 0.3, cfg.Matchmaking.GlobalRandomMatchProbability)
	assert.Equal(t, 60, cfg.Rating.UpdatePeriodMinutes)
	assert.Equal(t, 5, cfg.Tier.PromotionRelegationCount)
}

func TestConfig_Load_InvalidValuesUsesDefaults(t *testing.T) {
	clearEnv()

	os.Setenv("ARENA_PORT", "invalid")
	os.Setenv("MAX_BATTLES_PER_HOUR", "not_a_number")
	os.Setenv("ARENA_READ_TIMEOUT", "invalid_duration")
	os.Setenv("ARENA_CORS_ENABLED", "not_a_bool")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8585, cfg.Server.Port)
	assert.Equal(t, 20, cfg.RateLimit.MaxBattlesPerHour)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.CORS)
}

func validConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:   tempTestDir,
			BackupDir: tempTestDir + "/backups",
		},
		Matchmaking: MatchmakingConfig{
			GlobalRandomMatchProbability: 0.1,
			TransitionZoneProbability:    0.2,
		},
		RateLimit: RateLimitConfig{
			MaxAttemptsPerKey: 3,
		},
	}
}

var tempTestDir = os.TempDir() + "/ratingarena-config-test"

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidProbabilityRange(t *testing.T) {
	cfg := validConfig()
	cfg.Matchmaking.GlobalRandomMatchProbability = 1.5
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GLOBAL_RANDOM_MATCH_PROBABILITY")
}

func TestConfig_Validate_InvalidTransitionProbability(t *testing.T) {
	cfg := validConfig()
	cfg.Matchmaking.TransitionZoneProbability = -0.1
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSITION_ZONE_PROBABILITY")
}

func TestConfig_Validate_InvalidMaxAttemptsPerKey(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.MaxAttemptsPerKey = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS_PER_KEY")
}

func TestConfig_Validate_EmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Paths.DataDir = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "data directory")
}

// ==================== Helper Functions Tests ====================

func TestGetEnv_WithValue(t *testing.T) {
	os.Setenv("TEST_KEY", "test_value")
	defer os.Unsetenv("TEST_KEY")

	result := getEnv("TEST_KEY", "default")
	assert.Equal(t, "test_value", result)
}

func TestGetEnv_WithoutValue(t *testing.T) {
	os.Unsetenv("TEST_KEY")

	result := getEnv("TEST_KEY", "default")
	assert.Equal(t, "default", result)
}

func TestGetEnvAsInt_ValidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")

	result := getEnvAsInt("TEST_INT", 10)
	assert.Equal(t, 42, result)
}

func TestGetEnvAsInt_InvalidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "not_a_number")
	defer os.Unsetenv("TEST_INT")

	result := getEnvAsInt("TEST_INT", 10)
	assert.Equal(t, 10, result)
}

func TestGetEnvAsBool_True(t *testing.T) {
	tests := []string{"true", "True", "TRUE", "1", "t", "T"}

	for _, value := range tests {
		t.Run("Value "+value, func(t *testing.T) {
			os.Setenv("TEST_BOOL", value)
			defer os.Unsetenv("TEST_BOOL")

			result := getEnvAsBool("TEST_BOOL", false)
			assert.True(t, result)
		})
	}
}

func TestGetEnvAsBool_Invalid(t *testing.T) {
	os.Setenv("TEST_BOOL", "invalid")
	defer os.Unsetenv("TEST_BOOL")

	result := getEnvAsBool("TEST_BOOL", true)
	assert.True(t, result)
}

func TestGetEnvAsDuration_Valid(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"1s", 1 * time.Second},
		{"1m", 1 * time.Minute},
		{"1h", 1 * time.Hour},
		{"30s", 30 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"100ms", 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("Duration "+tt.value, func(t *testing.T) {
			os.Setenv("TEST_DURATION", tt.value)
			defer os.Unsetenv("TEST_DURATION")

			result := getEnvAsDuration("TEST_DURATION", 10*time.Second)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetEnvAsDuration_BareSeconds(t *testing.T) {
	os.Setenv("TEST_DURATION", "45")
	defer os.Unsetenv("TEST_DURATION")

	result := getEnvAsDuration("TEST_DURATION", 10*time.Second)
	assert.Equal(t, 45*time.Second, result)
}

func TestGetEnvAsDuration_Invalid(t *testing.T) {
	os.Setenv("TEST_DURATION", "not-a-duration")
	defer os.Unsetenv("TEST_DURATION")

	result := getEnvAsDuration("TEST_DURATION", 10*time.Second)
	assert.Equal(t, 10*time.Second, result)
}

func TestGetEnvAsFloat_Valid(t *testing.T) {
	os.Setenv("TEST_FLOAT", "0.25")
	defer os.Unsetenv("TEST_FLOAT")

	result := getEnvAsFloat("TEST_FLOAT", 0.5)
	assert.Equal(t, 0.25, result)
}

func TestGetEnvAsFloat_Invalid(t *testing.T) {
	os.Setenv("TEST_FLOAT", "not_a_float")
	defer os.Unsetenv("TEST_FLOAT")

	result := getEnvAsFloat("TEST_FLOAT", 0.5)
	assert.Equal(t, 0.5, result)
}

func TestGetEnvAsSlice_CommaSeparated(t *testing.T) {
	os.Setenv("TEST_SLICE", "value1,value2,value3")
	defer os.Unsetenv("TEST_SLICE")

	result := getEnvAsSlice("TEST_SLICE", []string{})
	assert.Equal(t, []string{"value1", "value2", "value3"}, result)
}

func TestGetEnvAsSlice_Empty(t *testing.T) {
	os.Unsetenv("TEST_SLICE")

	result := getEnvAsSlice("TEST_SLICE", []string{"default1", "default2"})
	assert.Equal(t, []string{"default1", "default2"}, result)
}
