// Package app holds the configuration and startup code shared by the
// minicode sub-commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/minicode/foundation/logger"
	"github.com/ardanlabs/minicode/sdk/minicode"
	"github.com/ardanlabs/minicode/sdk/minicode/backend"
	"github.com/ardanlabs/minicode/sdk/minicode/session"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Prefix is the environment variable prefix for every setting.
const Prefix = "MINICODE"

// ErrHelp is returned when the configuration help was printed.
var ErrHelp = errors.New("help displayed")

// Config represents the settings shared by the sub-commands.
type Config struct {
	conf.Version
	LibPath  string
	LlamaLog int `conf:"default:1"`
	Log      struct {
		Level string `conf:"default:info"`
	}
	Model struct {
		File                 string
		ContextCapacity      int  `conf:"default:2048"`
		BatchCapacity        int  `conf:"default:512"`
		Threads              int  `conf:"default:0"`
		PieceCacheSize       int  `conf:"default:4096"`
		IgnoreIntegrityCheck bool `conf:"default:false"`
		CheckSHA             bool `conf:"default:false"`
	}
	Sampling struct {
		MaxTokens     int     `conf:"default:256"`
		Temperature   float32 `conf:"default:0.7"`
		TopK          int     `conf:"default:40"`
		TopP          float32 `conf:"default:0.9"`
		RepeatPenalty float32 `conf:"default:1.0"`
		RepeatLastN   int     `conf:"default:64"`
		Seed          int     `conf:"default:-1"`
	}
	Guard struct {
		MaxDuration time.Duration `conf:"default:12s"`
		MaxChars    int           `conf:"default:0"`
		MaxRepeats  int           `conf:"default:0"`
	}
}

// =============================================================================

type ctxKey int

const traceKey ctxKey = 1

// SetTraceID stores a new trace id in the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey, uuid.NewString())
}

// GetTraceID returns the trace id from the context.
func GetTraceID(ctx context.Context) string {
	v, ok := ctx.Value(traceKey).(string)
	if !ok {
		return "00000000-0000-0000-0000-000000000000"
	}

	return v
}

// =============================================================================

// Parse reads the configuration from the environment and the command line.
// When showHelp is true the usage is printed and ErrHelp is returned.
func Parse(build string, showHelp bool) (Config, error) {
	cfg := Config{
		Version: conf.Version{
			Build: build,
			Desc:  "Minicode",
		},
	}

	if showHelp {
		help, err := conf.UsageInfo(Prefix, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}

		fmt.Println(help)
		return Config{}, ErrHelp
	}

	help, err := conf.Parse(Prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return Config{}, ErrHelp
		}
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// NewLogger constructs the logger used by the sub-commands. Logs are written
// to stderr so stdout only carries generated text.
func NewLogger(level string) *logger.Logger {
	var log *logger.Logger

	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			log.Debug(ctx, "error event", "message", r.Message)
		},
	}

	log = logger.NewWithEvents(os.Stderr, logger.ParseLevel(level), Prefix, GetTraceID, events)

	return log
}

// Start initializes the native library, constructs a Minicode value and
// loads the configured model. The returned function shuts everything down.
func Start(ctx context.Context, log *logger.Logger, cfg Config) (*minicode.Minicode, func(), error) {
	out, err := conf.String(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("generating config for output: %w", err)
	}
	log.Debug(ctx, "startup", "config", out)

	if cfg.Model.File == "" {
		return nil, nil, fmt.Errorf("start: model file required, set %s_MODEL_FILE or --model", Prefix)
	}

	log.Info(ctx, "startup", "status", "loading library", "lib-path", minicode.LibPath(cfg.LibPath))

	if err := minicode.Init(minicode.WithLibPath(cfg.LibPath), minicode.WithLogLevel(minicode.LogLevel(cfg.LlamaLog))); err != nil {
		return nil, nil, fmt.Errorf("start: unable to init minicode: %w", err)
	}

	log.Info(ctx, "startup", "status", "library loaded", "location", backend.LibraryLocation())

	mc, err := minicode.New(minicode.Config{
		Log:                  SDKLogger(log),
		ContextCapacity:      cfg.Model.ContextCapacity,
		BatchCapacity:        cfg.Model.BatchCapacity,
		Threads:              cfg.Model.Threads,
		PieceCacheSize:       cfg.Model.PieceCacheSize,
		IgnoreIntegrityCheck: cfg.Model.IgnoreIntegrityCheck,
		CheckSHA:             cfg.Model.CheckSHA,
		Guard: session.GuardConfig{
			MaxDuration: cfg.Guard.MaxDuration,
			MaxChars:    cfg.Guard.MaxChars,
			MaxRepeats:  cfg.Guard.MaxRepeats,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}

	log.Info(ctx, "startup", "status", "loading model", "model-file", cfg.Model.File)

	start := time.Now()

	if !mc.LoadModel(cfg.Model.File) {
		return nil, nil, fmt.Errorf("start: unable to load model %q, run with --log-level debug for details", cfg.Model.File)
	}

	log.Info(ctx, "startup", "status", "model loaded", "duration", time.Since(start).String())

	shutdown := func() {
		if err := mc.Shutdown(ctx); err != nil {
			log.Error(ctx, "shutdown", "ERROR", err)
		}
	}

	return mc, shutdown, nil
}

// SDKLogger adapts the logger to the sdk. Records carrying an ERROR key are
// logged as errors, ignored settings as warnings, load and finish records as
// info and everything else as debug.
func SDKLogger(log *logger.Logger) minicode.Logger {
	return func(ctx context.Context, msg string, args ...any) {
		const caller = 4

		var status string
		for i := 0; i+1 < len(args); i += 2 {
			switch args[i] {
			case "ERROR":
				log.Errorc(ctx, caller, msg, args...)
				return

			case "status":
				status, _ = args[i+1].(string)
			}
		}

		switch status {
		case "repeat-penalty-not-applied":
			log.Warnc(ctx, caller, msg, args...)

		case "loaded", "finished":
			log.Infoc(ctx, caller, msg, args...)

		default:
			log.Debugc(ctx, caller, msg, args...)
		}
	}
}

// =============================================================================

// AddFlags registers the flags shared by the sub-commands.
func AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "Path to the GGUF model file")
	cmd.Flags().String("lib-path", "", "Folder holding the llama.cpp libraries")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().Int("llama-log", -1, "llama.cpp logging: 1 silent, 2 normal")
	cmd.Flags().Int("max-tokens", 0, "Maximum number of tokens to generate")
	cmd.Flags().Float32("temperature", -1, "Sampling temperature")
	cmd.Flags().Int("top-k", -1, "Top-k sampling cutoff")
	cmd.Flags().Float32("top-p", -1, "Top-p sampling cutoff")
	cmd.Flags().Int("seed", -2, "Sampling seed, -1 draws a random seed")
	cmd.Flags().Bool("ignore-integrity-check", false, "Skip the model file check")
}

// SetEnv translates the flags that were set into environment variables so
// the configuration has a single source.
func SetEnv(cmd *cobra.Command) {
	for _, env := range BuildEnvVars(cmd) {
		os.Setenv(env[0], env[1])
	}
}

// BuildEnvVars returns the key value pairs for every flag that was set.
func BuildEnvVars(cmd *cobra.Command) [][2]string {
	var envVars [][2]string

	if v, _ := cmd.Flags().GetString("model"); v != "" {
		envVars = append(envVars, [2]string{Prefix + "_MODEL_FILE", v})
	}

	if v, _ := cmd.Flags().GetString("lib-path"); v != "" {
		envVars = append(envVars, [2]string{Prefix + "_LIB_PATH", v})
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		envVars = append(envVars, [2]string{Prefix + "_LOG_LEVEL", v})
	}

	if v, _ := cmd.Flags().GetInt("llama-log"); v != -1 {
		envVars = append(envVars, [2]string{Prefix + "_LLAMA_LOG", strconv.Itoa(v)})
	}

	if v, _ := cmd.Flags().GetInt("max-tokens"); v != 0 {
		envVars = append(envVars, [2]string{Prefix + "_SAMPLING_MAX_TOKENS", strconv.Itoa(v)})
	}

	if v, _ := cmd.Flags().GetFloat32("temperature"); v >= 0 {
		envVars = append(envVars, [2]string{Prefix + "_SAMPLING_TEMPERATURE", strconv.FormatFloat(float64(v), 'f', -1, 32)})
	}

	if v, _ := cmd.Flags().GetInt("top-k"); v >= 0 {
		envVars = append(envVars, [2]string{Prefix + "_SAMPLING_TOP_K", strconv.Itoa(v)})
	}

	if v, _ := cmd.Flags().GetFloat32("top-p"); v >= 0 {
		envVars = append(envVars, [2]string{Prefix + "_SAMPLING_TOP_P", strconv.FormatFloat(float64(v), 'f', -1, 32)})
	}

	if v, _ := cmd.Flags().GetInt("seed"); v != -2 {
		envVars = append(envVars, [2]string{Prefix + "_SAMPLING_SEED", strconv.Itoa(v)})
	}

	if v, _ := cmd.Flags().GetBool("ignore-integrity-check"); v {
		envVars = append(envVars, [2]string{Prefix + "_MODEL_IGNORE_INTEGRITY_CHECK", "true"})
	}

	return envVars
}

// ReadPrompt joins the arguments into a prompt. A single - argument reads
// the prompt from stdin.
func ReadPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	return strings.Join(args, " "), nil
}
