package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/joho/godotenv"
)

func init() {
	start := time.Now()

	if err := godotenv.Load(); err != nil {
		logging.DebugLog("Environment configuration: no .env file found, using process environment")
	} else {
		logging.InfoLog("Environment configuration: .env file loaded")
	}

	logging.DebugLog("Environment configuration loading completed %v", time.Since(start))
}

// MustGetEnv returns the value of the environment variable or panics if it's not set.
func MustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		logging.ErrorLog("Environment configuration failed: missing required variable %s", key)
		panic("config: missing required environment variable: " + key)
	}
	return v
}

// GetEnv returns the value of the environment variable or a default if it's not set.
func GetEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	logging.DebugLog("Environment variable not set, using fallback: %s", key)
	return fallback
}

// GetList splits a comma separated variable, dropping empty items.
func GetList(key, fallback string) []string {
	raw := GetEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MustParseDuration retrieves a duration from env or uses fallback, panics if invalid.
func MustParseDuration(key, fallback string) time.Duration {
	val := GetEnv(key, fallback)

	d, err := time.ParseDuration(val)
	if err != nil {
		logging.ErrorLog("Duration parsing failed: %s = %s, error: %v", key, val, err)
		panic("config: invalid duration in " + key + ": " + err.Error())
	}
	return d
}

// parseIntEnv reads a positive integer, returning def when unset or invalid.
func parseIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		logging.WarnLog("Environment variable %s=%q is not a positive integer, using %d", key, v, def)
		return def
	}
	return i
}

// parseNonNegativeIntEnv is parseIntEnv that also accepts zero.
func parseNonNegativeIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		logging.WarnLog("Environment variable %s=%q is not a non-negative integer, using %d", key, v, def)
		return def
	}
	return i
}
