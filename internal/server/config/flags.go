package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-m string   storage backend ("local" or "s3")
//	-l string   local storage directory
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000")
//	-t int      presign TTL, seconds
//	-x int      upload size ceiling, bytes
//	-w string   workbook path
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with -c/-config and -env.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-m", "-l", "-b", "-g", "-e", "-t", "-x", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.StorageBackend, "m", config.StorageBackend, "storage backend (local|s3)")
	fs.StringVar(&config.StorageDir, "l", config.StorageDir, "local storage directory")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	presignTTL := fs.Int("t", int(config.S3PresignTTL.Seconds()), "presign ttl (in seconds)")
	fs.Int64Var(&config.UploadMaxBytes, "x", config.UploadMaxBytes, "upload size ceiling (in bytes)")

	fs.StringVar(&config.WorkbookPath, "w", config.WorkbookPath, "workbook path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.S3PresignTTL = time.Duration(*presignTTL) * time.Second
}
