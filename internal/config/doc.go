// Package config provides configuration parsing for dropzone.
//
// The configuration is stored in dropzone.json or dropzone.yaml at the
// project root. This package handles loading, saving, and validating
// configuration, and maps it onto the upload package.
//
// # Configuration File Structure
//
//	endpoint:
//	  baseUrl: https://files.example.com
//	  apiKey: k-123
//	upload:
//	  maxFiles: 5
//	  maxSizeMB: 20
//	  accept:
//	    types: ["image/*", "application/pdf"]
//	preview:
//	  timeout: 5s
//	  maxWidth: 320
//	  maxHeight: 320
//	auth:
//	  redis:
//	    addr: localhost:6379
//	    key: dropzone:token
//	existing:
//	  s3:
//	    bucket: uploads
//	    prefix: users/42/
//	serve:
//	  addr: :8080
//	  dir: ./uploads
//	  tokens: ["dev-token"]
//	log:
//	  level: debug
//
// # Environment
//
// LoadEnv reads a .env file next to the configuration. ApplyEnv then
// overrides fields from DROPZONE_BASE_URL, DROPZONE_API_KEY,
// DROPZONE_TOKEN, DROPZONE_LOG_LEVEL and DROPZONE_MAX_FILES.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//
//	u, err := upload.New(cfg.UploadConfig())
package config
