package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays environment variables onto config. When envFile exists
// it is loaded first; variables already present in the process environment
// win over the file. Malformed numeric or duration values panic.
//
//	PORT, HTTP_ADDR, DATABASE_DSN, CORS_ORIGIN, REQUEST_TIMEOUT
//	ACCESS_TOKEN_SECRET, ACCESS_TOKEN_EXPIRY
//	REFRESH_TOKEN_SECRET, REFRESH_TOKEN_EXPIRY
//	LOG_LEVEL, LOG_FORMAT, UPLOAD_DIR, MAX_UPLOAD_BYTES
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT, S3_PUBLIC_URL
//	MEDIA_JANITOR_INTERVAL, LOGIN_RATE_LIMIT, LOGIN_RATE_WINDOW, REDIS_ADDR, REDIS_PASSWORD
//
// Expiry values take Go durations plus a day suffix, e.g. "10d".
func parseEnv(config *Config, envFile string) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				panic(fmt.Errorf("load %s: %w", envFile, err))
			}
		}
	}

	if port, ok := lookup("PORT"); ok {
		config.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	}
	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("CORS_ORIGIN", &config.CORSOrigin)
	envDuration("REQUEST_TIMEOUT", &config.RequestTimeout)
	envString("ACCESS_TOKEN_SECRET", &config.AccessTokenSecret)
	envDuration("ACCESS_TOKEN_EXPIRY", &config.AccessTokenValidityDuration)
	envString("REFRESH_TOKEN_SECRET", &config.RefreshTokenSecret)
	envDuration("REFRESH_TOKEN_EXPIRY", &config.RefreshTokenValidityDuration)
	envString("LOG_LEVEL", &config.LogLevel)
	envString("LOG_FORMAT", &config.LogFormat)
	envString("UPLOAD_DIR", &config.UploadDir)
	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			panic(fmt.Errorf("MAX_UPLOAD_BYTES: invalid value %q", v))
		}
		config.MaxUploadBytes = n
	}
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("S3_PUBLIC_URL", &config.S3PublicURL)
	envDuration("MEDIA_JANITOR_INTERVAL", &config.MediaJanitorInterval)
	if v, ok := lookup("LOGIN_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			panic(fmt.Errorf("LOGIN_RATE_LIMIT: invalid value %q", v))
		}
		config.LoginRateLimit = n
	}
	envDuration("LOGIN_RATE_WINDOW", &config.LoginRateWindow)
	envString("REDIS_ADDR", &config.RedisAddr)
	envString("REDIS_PASSWORD", &config.RedisPassword)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	d, err := ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = d
}

// ParseDuration accepts everything time.ParseDuration does, plus whole
// days written as "<n>d".
func ParseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
