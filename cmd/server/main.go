// Package main is the entry point for the photo gallery.
//
//	photo-gallery                      run the web server (same as "serve")
//	photo-gallery serve                run the web server
//	photo-gallery user create <id>     create an account (--admin for an admin)
//	photo-gallery user promote <id>    grant the admin flag (--revoke to remove it)
//
// Configuration comes from --config (TOML), a .env file and the
// environment; see internal/config.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/photo-gallery/internal/config"
	"github.com/sakif/photo-gallery/internal/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by the persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Text output on stderr keeps stdout
// free for command results.
func newLogger(cfg config.Config) *slog.Logger {
	level, err := cfg.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

var rootCmd = &cobra.Command{
	Use:           "photo-gallery",
	Short:         "Year-grouped photo sharing server",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := newLogger(cfg)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a dotenv file (ignored when missing)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().Bool("admin", false, "Create the account with the admin flag")
	userCreateCmd.Flags().Bool("password-stdin", false, "Read the password from stdin instead of prompting")
	userCmd.AddCommand(userPromoteCmd)
	userPromoteCmd.Flags().Bool("revoke", false, "Remove the admin flag instead of granting it")
}
