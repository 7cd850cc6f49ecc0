package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contentengine/internal/bootstrap"
	"contentengine/internal/infra"
)

var debugMode bool

var rootCmd = &cobra.Command{
	Use:           "contentctl",
	Short:         "Operate the content engine from the command line",
	Long:          `Run generation jobs, inspect and approve them, and manage provider credentials.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(
		migrateCmd(),
		generateCmd(),
		runCmd(),
		approveCmd(),
		jobsCmd(),
		modelsCmd(),
		credentialsCmd(),
		cleanupCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*infra.Config, infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, infra.Logger{}, err
	}
	appEnv := "cli"
	if debugMode {
		appEnv = "development"
	}
	logger := infra.NewLoggerTo(os.Stderr, appEnv).With().Str("cmd", "contentctl").Logger()
	return cfg, logger, nil
}

// withEngine builds the engine for one command and closes it afterwards.
func withEngine(cmd *cobra.Command, fn func(e *bootstrap.Engine) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := bootstrap.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
