// Command semlayer собирает, выполняет и выгружает датасеты семантического слоя.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/ruslano69/semlayer/pkg/qerrors"
)

var (
	configFile  string
	datasetsDir string
	envFile     string
	verbose     bool

	app *App
)

var rootCmd = &cobra.Command{
	Use:           "semlayer",
	Short:         "Semantic layer over CSV, Parquet and SQL datasets",
	Long:          `semlayer builds SQL from declarative dataset schemas, executes it on the embedded DuckDB engine or a remote database, paginates results and checks generated analysis code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init-config" {
			return nil
		}
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "semlayer.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&datasetsDir, "datasets", "", "Datasets directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		buildCmd(),
		queryCmd(),
		pageCmd(),
		cleanCmd(),
		ingestCmd(),
		exportCmd(),
		auditCmd(),
		initConfigCmd(),
	)
}

// newLogger - цветной slog для stderr
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// setup читает .env и конфигурацию и собирает App
func setup(ctx context.Context) error {
	log := newLogger(verbose)

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config := DefaultConfig()
	if _, err := os.Stat(configFile); err == nil {
		if config, err = LoadConfig(configFile); err != nil {
			return err
		}
		log.Debug("config loaded", "file", configFile)
	}
	if datasetsDir != "" {
		config.DatasetsDir = datasetsDir
	}

	var err error
	app, err = NewApp(ctx, config, log)
	return err
}

// exitCode различает отклоненный запрос и прочие ошибки
func exitCode(err error) int {
	switch {
	case qerrors.IsMalicious(err):
		return 3
	case qerrors.IsValidation(err), qerrors.IsConstruction(err), qerrors.IsSQLNotUsed(err):
		return 2
	default:
		return 1
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)

	if app != nil {
		if closeErr := app.Close(context.Background()); closeErr != nil {
			app.Log.Warn("shutdown failed", "error", closeErr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
