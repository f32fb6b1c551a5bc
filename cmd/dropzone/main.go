package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/dropzone/internal/config"
	"github.com/vango-dev/dropzone/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "dropzone",
		Short: "Validate, preview and upload files",
		Long: `Dropzone uploads files to an HTTP endpoint.

Files are sanitized and validated locally, shown next to the files
the server already holds, and sent in one multipart request.
Features include:

  • Size, name and type validation before anything is sent
  • Existing files from a list, S3, MinIO or an HTTP endpoint
  • Bearer tokens from the environment, Redis or a login session
  • A reference upload endpoint with metrics and tracing
  • A live websocket feed of the upload state`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to dropzone.json or dropzone.yaml")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		uploadCmd(&flags),
		serveCmd(&flags),
		loginCmd(&flags),
		logoutCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if flags.noColor {
			errors.DisableColors()
		}
		errors.PrintError(err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config, or the closest
// one above the working directory. Without a file the defaults apply.
// .env and DROPZONE_* variables are applied last, then the logger is set
// up from the result.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		var de *errors.DropzoneError
		if stderrors.As(err, &de) && de.Code == "E141" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	envDir := cfg.Dir()
	if envDir == "" {
		envDir = "."
	}
	if err := config.LoadEnv(envDir); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(cfg.Log))
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for --json output.
func newLogger(lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// success prints a success message.
func success(noColor bool, format string, args ...any) {
	mark := "\033[32m✓\033[0m"
	if noColor {
		mark = "✓"
	}
	fmt.Printf("%s %s\n", mark, fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
