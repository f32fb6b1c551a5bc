package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/dropzone/internal/errors"
	"github.com/vango-dev/dropzone/pkg/upload"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "dropzone.json"

	// YAMLConfigFileName is checked when ConfigFileName is absent.
	YAMLConfigFileName = "dropzone.yaml"

	// DefaultBaseURL is the endpoint used when none is configured.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultServeAddr is the listen address of 'dropzone serve'.
	DefaultServeAddr = ":8080"

	// DefaultServeDir is where 'dropzone serve' stores files.
	DefaultServeDir = "uploads"

	// DefaultPreviewTimeout bounds how long a preview read may take.
	DefaultPreviewTimeout = "5s"

	// DefaultLogLevel is used when log.level is empty.
	DefaultLogLevel = "info"
)

// Environment variables applied after the file is read.
const (
	EnvBaseURL  = "DROPZONE_BASE_URL"
	EnvAPIKey   = "DROPZONE_API_KEY"
	EnvToken    = "DROPZONE_TOKEN"
	EnvLogLevel = "DROPZONE_LOG_LEVEL"
	EnvMaxFiles = "DROPZONE_MAX_FILES"
)

// configNames lists the files Load looks for, in order.
var configNames = []string{ConfigFileName, YAMLConfigFileName, "dropzone.yml"}

// Config represents the complete dropzone configuration.
type Config struct {
	// Endpoint is the upload server the CLI talks to.
	Endpoint EndpointConfig `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Upload contains intake limits and the accept policy.
	Upload UploadConfig `json:"upload,omitempty" yaml:"upload,omitempty"`

	// Preview contains thumbnail settings.
	Preview PreviewConfig `json:"preview,omitempty" yaml:"preview,omitempty"`

	// Auth configures where the bearer token comes from.
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Existing lists the sources of files already on the server.
	Existing ExistingConfig `json:"existing,omitempty" yaml:"existing,omitempty"`

	// Serve configures the reference endpoint.
	Serve ServeConfig `json:"serve,omitempty" yaml:"serve,omitempty"`

	// Live configures the websocket snapshot stream.
	Live LiveConfig `json:"live,omitempty" yaml:"live,omitempty"`

	// Log configures the slog handler.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// EndpointConfig describes the upload server.
type EndpointConfig struct {
	// BaseURL is joined with /app/file/upload.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// APIKey is sent as X-API-KEY when set.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// Timeout bounds a whole upload request (e.g., "2m"). Empty means none.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// UploadConfig contains intake settings.
type UploadConfig struct {
	// Multiple admits batches. When false each intake replaces the
	// pending file.
	Multiple *bool `json:"multiple,omitempty" yaml:"multiple,omitempty"`

	// MaxFiles caps existing plus local entries.
	MaxFiles int `json:"maxFiles,omitempty" yaml:"maxFiles,omitempty"`

	// MaxSizeMB is the soft per-file cap. The 100MB hard cap always applies.
	MaxSizeMB int `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`

	// Accept restricts file types.
	Accept upload.Accept `json:"accept,omitempty" yaml:"accept,omitempty"`

	// FileConfigs is sent verbatim as the fileConfigs form field.
	FileConfigs []map[string]any `json:"fileConfigs,omitempty" yaml:"fileConfigs,omitempty"`
}

// PreviewConfig contains thumbnail settings.
type PreviewConfig struct {
	// Timeout bounds a preview read (e.g., "5s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxWidth and MaxHeight scale previews down. Zero keeps the original.
	MaxWidth  int `json:"maxWidth,omitempty" yaml:"maxWidth,omitempty"`
	MaxHeight int `json:"maxHeight,omitempty" yaml:"maxHeight,omitempty"`

	// Blob keeps previews in a revocable blob store instead of data URIs.
	Blob bool `json:"blob,omitempty" yaml:"blob,omitempty"`
}

// AuthConfig lists token sources, tried in order: Token, Redis, SessionFile.
type AuthConfig struct {
	// Token is a fixed bearer token.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// SessionFile is written by 'dropzone login'. Default:
	// ~/.config/dropzone/session.json.
	SessionFile string `json:"sessionFile,omitempty" yaml:"sessionFile,omitempty"`

	// Redis reads the token from a shared key.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`

	// ExpiryLeeway rejects JWTs this close to expiry (e.g., "30s").
	ExpiryLeeway string `json:"expiryLeeway,omitempty" yaml:"expiryLeeway,omitempty"`
}

// RedisConfig locates a token in Redis.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
}

// ExistingConfig lists sources of server-held files. Every configured
// source is loaded and the results are concatenated.
type ExistingConfig struct {
	// File is a JSON or YAML list of files.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// URL is fetched with the upload token and must answer {"data": [...]}.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	S3    *S3Config    `json:"s3,omitempty" yaml:"s3,omitempty"`
	MinIO *MinIOConfig `json:"minio,omitempty" yaml:"minio,omitempty"`
}

// S3Config lists objects under a bucket prefix.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Expiry is the lifetime of presigned URLs (e.g., "24h").
	Expiry string `json:"expiry,omitempty" yaml:"expiry,omitempty"`
}

// MinIOConfig lists objects in a MinIO bucket.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"accessKey,omitempty" yaml:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty" yaml:"secretKey,omitempty"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	UseSSL    bool   `json:"useSSL,omitempty" yaml:"useSSL,omitempty"`
	Expiry    string `json:"expiry,omitempty" yaml:"expiry,omitempty"`
}

// ServeConfig configures 'dropzone serve'.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Dir is the storage directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// PublicURL prefixes returned file URLs.
	PublicURL string `json:"publicUrl,omitempty" yaml:"publicUrl,omitempty"`

	// Tokens are accepted bearer tokens.
	Tokens []string `json:"tokens,omitempty" yaml:"tokens,omitempty"`

	// HMACSecret accepts HS256 JWTs signed with it.
	HMACSecret string `json:"hmacSecret,omitempty" yaml:"hmacSecret,omitempty"`

	// APIKey, when set, must match the X-API-KEY header.
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// MaxSizeMB is the per-file limit. Default: the 100MB hard cap.
	MaxSizeMB int `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`

	// MaxFiles is the per-request limit.
	MaxFiles int `json:"maxFiles,omitempty" yaml:"maxFiles,omitempty"`

	// Accept restricts stored types. Empty admits everything.
	Accept upload.Accept `json:"accept,omitempty" yaml:"accept,omitempty"`

	// CleanupInterval and MaxAge expire stored files. Empty MaxAge
	// disables cleanup.
	CleanupInterval string `json:"cleanupInterval,omitempty" yaml:"cleanupInterval,omitempty"`
	MaxAge          string `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`

	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// LiveConfig configures the snapshot websocket.
type LiveConfig struct {
	// Addr enables the stream on this address during 'dropzone upload'.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the specified directory. It looks for
// dropzone.json, then dropzone.yaml, then dropzone.yml.
func Load(dir string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E141").
		WithDetail("No dropzone.json or dropzone.yaml found in " + dir)
}

// LoadFile reads configuration from the specified file path. The format
// follows the extension: .yaml and .yml are YAML, anything else JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	}
	if err != nil {
		return nil, parseError(path, data, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// parseError points an E120 at the offending line when the decoder
// reports one.
func parseError(path string, data []byte, err error) error {
	e := errors.New("E120").
		WithDetail(fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)).
		Wrap(err)

	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntax):
		line, col := position(data, syntax.Offset)
		e.WithLocation(path, line, col)
	case stderrors.As(err, &typeErr):
		line, col := position(data, typeErr.Offset)
		e.WithLocation(path, line, col)
	default:
		if line := yamlLine(err); line > 0 {
			e.WithLocation(path, line, 0)
		}
	}
	return e
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col = 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// yamlLine extracts N from "yaml: line N: ..." style messages.
func yamlLine(err error) int {
	msg := err.Error()
	i := strings.Index(msg, "line ")
	if i < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(msg[i:], "line %d", &n); err != nil {
		return 0
	}
	return n
}

// LoadEnv loads dir/.env into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New("E123").
			WithDetail("Failed to read " + path).
			Wrap(err)
	}
	return nil
}

// ApplyEnv overrides fields from DROPZONE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Endpoint.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Endpoint.APIKey = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if !validLevel(v) {
			return errors.New("E123").
				WithDetail(fmt.Sprintf("%s=%q is not one of debug, info, warn, error", EnvLogLevel, v))
		}
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvMaxFiles); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return errors.New("E123").
				WithDetail(fmt.Sprintf("%s=%q is not a positive integer", EnvMaxFiles, v))
		}
		c.Upload.MaxFiles = n
	}
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path, as YAML when the
// extension says so.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	// Endpoint
	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = DefaultBaseURL
	}

	// Upload
	if c.Upload.Multiple == nil {
		multiple := true
		c.Upload.Multiple = &multiple
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = upload.DefaultMaxFiles
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = upload.DefaultMaxSizeMB
	}
	if c.Upload.Accept.Types == nil && c.Upload.Accept.Extensions == nil && !c.Upload.Accept.Any {
		c.Upload.Accept = upload.AcceptAny()
	}

	// Preview
	if c.Preview.Timeout == "" {
		c.Preview.Timeout = DefaultPreviewTimeout
	}

	// Serve
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}
	if c.Serve.Dir == "" {
		c.Serve.Dir = DefaultServeDir
	}
	if c.Serve.MaxFiles == 0 {
		c.Serve.MaxFiles = upload.DefaultMaxFiles
	}
	if c.Serve.CleanupInterval == "" {
		c.Serve.CleanupInterval = "1h"
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Upload.MaxFiles < 0 {
		return c.invalid("upload.maxFiles must be positive")
	}
	if c.Upload.MaxSizeMB < 0 {
		return c.invalid("upload.maxSizeMB must be positive")
	}
	if err := c.Policy().Check(); err != nil {
		return errors.New("E121").Wrap(err)
	}
	if c.Serve.MaxSizeMB < 0 || int64(c.Serve.MaxSizeMB)*upload.MB > upload.HardMaxBytes {
		return c.invalid("serve.maxSizeMB must be between 1 and 100")
	}
	if c.Preview.MaxWidth < 0 || c.Preview.MaxHeight < 0 {
		return c.invalid("preview.maxWidth and preview.maxHeight must not be negative")
	}

	durations := map[string]string{
		"endpoint.timeout":      c.Endpoint.Timeout,
		"preview.timeout":       c.Preview.Timeout,
		"auth.expiryLeeway":     c.Auth.ExpiryLeeway,
		"serve.cleanupInterval": c.Serve.CleanupInterval,
		"serve.maxAge":          c.Serve.MaxAge,
	}
	if c.Existing.S3 != nil {
		durations["existing.s3.expiry"] = c.Existing.S3.Expiry
	}
	if c.Existing.MinIO != nil {
		durations["existing.minio.expiry"] = c.Existing.MinIO.Expiry
	}
	for field, v := range durations {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return c.invalid(fmt.Sprintf("%s: %q is not a valid duration", field, v))
		}
	}

	if c.Existing.S3 != nil && c.Existing.S3.Bucket == "" {
		return c.invalid("existing.s3.bucket is required")
	}
	if c.Existing.MinIO != nil && (c.Existing.MinIO.Bucket == "" || c.Existing.MinIO.Endpoint == "") {
		return c.invalid("existing.minio needs endpoint and bucket")
	}
	if c.Auth.Redis != nil && c.Auth.Redis.Addr == "" {
		return c.invalid("auth.redis.addr is required")
	}
	if !validLevel(c.Log.Level) {
		return c.invalid(fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return c.invalid(fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	return nil
}

func (c *Config) invalid(detail string) error {
	e := errors.New("E122").WithDetail(detail)
	if c.configPath != "" {
		e.Location = &errors.Location{File: c.configPath}
	}
	return e
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Policy returns the validation policy for the uploader.
func (c *Config) Policy() upload.Policy {
	return upload.Policy{
		MaxSizeMB: c.Upload.MaxSizeMB,
		Accept:    c.Upload.Accept,
	}
}

// UploadConfig returns the uploader configuration.
func (c *Config) UploadConfig() upload.Config {
	multiple := true
	if c.Upload.Multiple != nil {
		multiple = *c.Upload.Multiple
	}
	return upload.Config{
		BaseURL:     c.Endpoint.BaseURL,
		APIKey:      c.Endpoint.APIKey,
		Multiple:    multiple,
		MaxFiles:    c.Upload.MaxFiles,
		Policy:      c.Policy(),
		FileConfigs: c.Upload.FileConfigs,
	}
}

// Previewer returns the preview settings. blobs is used only when
// preview.blob is set.
func (c *Config) Previewer(blobs *upload.BlobStore) *upload.Previewer {
	p := &upload.Previewer{
		Timeout:   Duration(c.Preview.Timeout),
		MaxWidth:  c.Preview.MaxWidth,
		MaxHeight: c.Preview.MaxHeight,
	}
	if c.Preview.Blob {
		p.Blobs = blobs
	}
	return p
}

// Duration parses a validated duration string. Empty or invalid values
// are zero.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("No dropzone.json or dropzone.yaml found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working
// directory or its closest parent that has one.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
