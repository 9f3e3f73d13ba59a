package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"qgrid/internal/engine"
)

// Config holds the settings shared by the qgrid commands.
type Config struct {
	Alpha               float32          // QGRID_ALPHA, learning rate
	Gamma               float32          // QGRID_GAMMA, discount factor
	Epsilon             float32          // QGRID_EPSILON, initial exploration rate
	EpsilonDecayRate    float32          // QGRID_EPSILON_DECAY, per-episode multiplier
	EpsilonMinimumValue float32          // QGRID_EPSILON_MIN, decay stops below this
	NumberOfEpisodes    int              // QGRID_EPISODES
	YieldEvery          int              // QGRID_YIELD_EVERY, episodes between progress reports and checkpoints
	Selection           engine.Selection // QGRID_SELECTION
	Seed                int64            // QGRID_SEED
	ForgetPrevious      bool             // QGRID_FORGET, discard any saved table
	TablePath           string           // QGRID_TABLE
	BoardPath           string           // QGRID_BOARD, empty for the built-in board
	DBPath              string           // QGRID_DB, empty disables checkpoints
	ChartPath           string           // QGRID_CHART, empty disables the chart
	Addr                string           // QGRID_ADDR, listen address of the API
	LogLevel            logrus.Level     // QGRID_LOG_LEVEL
}

// Load reads a .env file from the working directory if one exists, then
// builds the configuration from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// LoadFile reads the given env files (without overriding variables already
// set) and builds the configuration.
func LoadFile(paths ...string) (Config, error) {
	if err := godotenv.Load(paths...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() (Config, error) {
	var cfg Config
	var err error
	if cfg.Alpha, err = getEnvAsFloat32("QGRID_ALPHA", 0.3); err != nil {
		return Config{}, err
	}
	if cfg.Gamma, err = getEnvAsFloat32("QGRID_GAMMA", 0.8); err != nil {
		return Config{}, err
	}
	if cfg.Epsilon, err = getEnvAsFloat32("QGRID_EPSILON", 1); err != nil {
		return Config{}, err
	}
	if cfg.EpsilonDecayRate, err = getEnvAsFloat32("QGRID_EPSILON_DECAY", 0.999); err != nil {
		return Config{}, err
	}
	if cfg.EpsilonMinimumValue, err = getEnvAsFloat32("QGRID_EPSILON_MIN", 0.05); err != nil {
		return Config{}, err
	}
	if cfg.NumberOfEpisodes, err = getEnvAsInt("QGRID_EPISODES", 10000); err != nil {
		return Config{}, err
	}
	if cfg.YieldEvery, err = getEnvAsInt("QGRID_YIELD_EVERY", 100); err != nil {
		return Config{}, err
	}
	if cfg.Selection, err = engine.ParseSelection(getEnvWithDefault("QGRID_SELECTION", "zero-floored-argmax")); err != nil {
		return Config{}, fmt.Errorf("QGRID_SELECTION: %w", err)
	}
	seed, err := getEnvAsInt("QGRID_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.Seed = int64(seed)
	if cfg.ForgetPrevious, err = getEnvAsBool("QGRID_FORGET", false); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getEnvWithDefault("QGRID_LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("QGRID_LOG_LEVEL: %w", err)
	}
	cfg.TablePath = getEnvWithDefault("QGRID_TABLE", "qtable.csv")
	cfg.BoardPath = getEnvWithDefault("QGRID_BOARD", "")
	cfg.DBPath = getEnvWithDefault("QGRID_DB", "qgrid.db")
	cfg.ChartPath = getEnvWithDefault("QGRID_CHART", "")
	cfg.Addr = getEnvWithDefault("QGRID_ADDR", "localhost:8089")
	return cfg, nil
}

// Trainer converts the settings into an engine configuration.
func (c Config) Trainer() engine.Config {
	return engine.Config{
		Alpha:               c.Alpha,
		Gamma:               c.Gamma,
		Epsilon:             c.Epsilon,
		EpsilonDecayRate:    c.EpsilonDecayRate,
		EpsilonMinimumValue: c.EpsilonMinimumValue,
		NumberOfEpisodes:    c.NumberOfEpisodes,
		YieldEvery:          c.YieldEvery,
		Selection:           c.Selection,
		Seed:                c.Seed,
	}
}

// getEnvWithDefault retrieves the value of an environment variable or returns a default value if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) (float32, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a number: %w", key, err)
	}
	return float32(f), nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a boolean: %w", key, err)
	}
	return b, nil
}
