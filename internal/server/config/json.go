package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sitevisit/internal/flagx"
	"github.com/dmitrijs2005/sitevisit/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which accepts both duration
// strings such as "15m" and integer seconds.
//
// Pointer fields distinguish "absent" from "zero": only keys present in the
// file override the current Config.
type JsonConfig struct {
	HTTPAddr             *string         `json:"http_addr"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SecretKey            *string         `json:"secret_key"`
	AuthDisabled         *bool           `json:"auth_disabled"`
	StorageBackend       *string         `json:"storage_backend"`
	StorageDir           *string         `json:"storage_dir"`
	StoragePublicBaseURL *string         `json:"storage_public_base_url"`
	S3Region             *string         `json:"s3_region"`
	S3Bucket             *string         `json:"s3_bucket"`
	S3Prefix             *string         `json:"s3_prefix"`
	S3BaseEndpoint       *string         `json:"s3_base_endpoint"`
	S3PublicBaseURL      *string         `json:"s3_public_base_url"`
	S3ACL                *string         `json:"s3_acl"`
	S3AccessKey          *string         `json:"s3_access_key"`
	S3SecretKey          *string         `json:"s3_secret_key"`
	S3PresignTTL         *timex.Duration `json:"s3_presign_ttl"`
	S3PresignMethod      *string         `json:"s3_presign_method"`
	UploadAllowedTypes   []string        `json:"upload_allowed_types"`
	UploadMaxBytes       *int64          `json:"upload_max_bytes"`
	WorkbookPath         *string         `json:"workbook_path"`
	LogBackend           *string         `json:"log_backend"`
	Production           *bool           `json:"production"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If it is
// not set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AuthDisabled != nil {
		config.AuthDisabled = *c.AuthDisabled
	}
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.StorageDir, c.StorageDir)
	setString(&config.StoragePublicBaseURL, c.StoragePublicBaseURL)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Prefix, c.S3Prefix)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setString(&config.S3ACL, c.S3ACL)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	if c.S3PresignTTL != nil {
		config.S3PresignTTL = c.S3PresignTTL.Duration
	}
	setString(&config.S3PresignMethod, c.S3PresignMethod)
	if c.UploadAllowedTypes != nil {
		config.UploadAllowedTypes = c.UploadAllowedTypes
	}
	if c.UploadMaxBytes != nil {
		config.UploadMaxBytes = *c.UploadMaxBytes
	}
	setString(&config.WorkbookPath, c.WorkbookPath)
	setString(&config.LogBackend, c.LogBackend)
	if c.Production != nil {
		config.Production = *c.Production
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
