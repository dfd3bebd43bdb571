package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays Config with process environment variables. A dotenv
// file (-env flag, else ".env" in the working directory) is loaded first;
// variables already set in the process win over the file. A missing
// default .env is not an error; a missing explicit file panics, like a
// missing JSON config.
//
// Recognized variables:
//
//	HTTP_ADDR, DATABASE_URL (or SQLALCHEMY_DATABASE_URL), JWT_SECRET, AUTH_DISABLED,
//	STORAGE_BACKEND, STORAGE_DIR, STORAGE_PUBLIC_BASE_URL,
//	AWS_REGION, AWS_S3_BUCKET, AWS_S3_PREFIX, AWS_S3_ENDPOINT_URL, AWS_PUBLIC_BASE_URL,
//	AWS_S3_ACL, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_S3_PRESIGN_TTL (seconds),
//	AWS_S3_PRESIGN_METHOD, UPLOAD_ALLOWED_TYPES (comma list), UPLOAD_MAX_BYTES,
//	WORKBOOK_PATH, LOG_BACKEND, PRODUCTION
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("SQLALCHEMY_DATABASE_URL", &config.DatabaseDSN)
	envString("DATABASE_URL", &config.DatabaseDSN)
	envString("JWT_SECRET", &config.SecretKey)
	envBool("AUTH_DISABLED", &config.AuthDisabled)

	envString("STORAGE_BACKEND", &config.StorageBackend)
	config.StorageBackend = strings.ToLower(strings.TrimSpace(config.StorageBackend))
	envString("STORAGE_DIR", &config.StorageDir)
	envString("STORAGE_PUBLIC_BASE_URL", &config.StoragePublicBaseURL)

	envString("AWS_REGION", &config.S3Region)
	envString("AWS_S3_BUCKET", &config.S3Bucket)
	envString("AWS_S3_PREFIX", &config.S3Prefix)
	envString("AWS_S3_ENDPOINT_URL", &config.S3BaseEndpoint)
	envString("AWS_PUBLIC_BASE_URL", &config.S3PublicBaseURL)
	envString("AWS_S3_ACL", &config.S3ACL)
	envString("AWS_ACCESS_KEY_ID", &config.S3AccessKey)
	envString("AWS_SECRET_ACCESS_KEY", &config.S3SecretKey)
	envSeconds("AWS_S3_PRESIGN_TTL", &config.S3PresignTTL)
	envString("AWS_S3_PRESIGN_METHOD", &config.S3PresignMethod)

	if v, ok := os.LookupEnv("UPLOAD_ALLOWED_TYPES"); ok {
		config.UploadAllowedTypes = splitList(v)
	}
	envInt64("UPLOAD_MAX_BYTES", &config.UploadMaxBytes)

	envString("WORKBOOK_PATH", &config.WorkbookPath)
	envString("LOG_BACKEND", &config.LogBackend)
	envBool("PRODUCTION", &config.Production)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		panic("invalid boolean for " + key + ": " + v)
	}
}

func envInt64(key string, dst *int64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envSeconds(key string, dst *time.Duration) {
	if _, ok := os.LookupEnv(key); !ok {
		return
	}
	n := int64(dst.Seconds())
	envInt64(key, &n)
	*dst = time.Duration(n) * time.Second
}

// splitList turns "a, b,,c" into [a b c].
func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
