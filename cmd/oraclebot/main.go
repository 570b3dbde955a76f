package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cryptooracle/oraclebot"
	"github.com/cryptooracle/oraclebot/config"
	zl "github.com/cryptooracle/oraclebot/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const banner = `
   ___                 _      ____        _
  / _ \ _ __ __ _  ___| | ___| __ )  ___ | |_
 | | | | '__/ _' |/ __| |/ _ \  _ \ / _ \| __|
 | |_| | | | (_| | (__| |  __/ |_) | (_) | |_
  \___/|_|  \__,_|\___|_|\___|____/ \___/ \__|
`

var (
	configPath string
	envPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "oraclebot",
		Short:   "AI-advised multi-symbol trading bot",
		Version: "1.0.0",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "environment file with secrets")

	rootCmd.AddCommand(buildRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	// Secrets come from the environment; a missing env file is fine
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := zl.New(cfg.LogLevel, os.Stderr)
	fmt.Print(banner)

	pidFile, err := writePidFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	bot, err := oraclebot.NewBot(cfg,
		oraclebot.WithLogger(log),
		oraclebot.WithConfigPath(configPath),
	)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	defer bot.Shutdown()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return bot.Run(ctx)
}

func writePidFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("data dir: %w", err)
	}
	path := filepath.Join(dir, "bot.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return "", fmt.Errorf("pid file: %w", err)
	}
	return path, nil
}
