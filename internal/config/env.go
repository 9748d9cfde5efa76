// Package config provides environment variable helpers used to override
// persisted settings and command flags.
package config

import (
	"os"
	"strconv"
	"time"
)

// GetStringEnv returns the value of key, or fallback when unset or empty.
func GetStringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// GetBoolEnv returns the boolean value of key, or fallback when unset or
// unparseable.
func GetBoolEnv(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetIntEnv returns the integer value of key, or fallback when unset or
// unparseable.
func GetIntEnv(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetDurationEnv returns the duration value of key, or fallback when unset
// or unparseable.
func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
