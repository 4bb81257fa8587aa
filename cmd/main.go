package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/barryq93/dbexpiry/internal/app"
	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/barryq93/dbexpiry/internal/utils"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	settings, err := parseSettings(args, programDir(), stderr)
	if err == pflag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logger, err := utils.NewLogger(settings.LogLevel, settings.LogFormat, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	if err := app.Validate(settings); err != nil {
		logger.Errorf("Invalid settings: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.NewApplication(settings, logger)
	if settings.Watch {
		if err := application.Watch(ctx); err != nil {
			logger.Error(err.Error())
			return 1
		}
		logger.Info("Shutdown signal received")
		return 0
	}

	if _, err := application.Run(ctx); err != nil {
		logger.Error(err.Error())
		return 1
	}
	return 0
}

// parseSettings builds the settings from defaults, the optional --config
// file and the flags, in increasing order of precedence.
func parseSettings(args []string, baseDir string, output io.Writer) (types.Settings, error) {
	defaults := app.DefaultSettings(baseDir)

	fs := pflag.NewFlagSet("dbexpiry", pflag.ContinueOnError)
	fs.SetOutput(output)
	configFile := fs.String("config", "", "Path to an optional YAML settings file")
	dbList := fs.String("dblist", defaults.DBList, "Path to the file containing the list of databases")
	sqlFile := fs.String("sql", defaults.SQLFile, "Path to the SQL file")
	workers := fs.Int("workers", defaults.Workers, "Number of parallel workers")
	logLevel := fs.String("log-level", defaults.LogLevel, "Log level: DEBUG, INFO, WARNING, ERROR or CRITICAL")
	logFormat := fs.String("log-format", defaults.LogFormat, "Log format: text or json")
	driver := fs.String("driver", defaults.Driver, "Database driver: oracle or db2")
	libDir := fs.String("lib-dir", "", "Oracle Instant Client directory")
	configDir := fs.String("config-dir", "", "Oracle network configuration (TNS_ADMIN / wallet) directory")
	timeout := fs.Int("timeout", 0, "Per-database timeout in seconds (0 disables)")
	connectRate := fs.Float64("connect-rate", 0, "Maximum connection attempts per second (0 disables)")
	connectBurst := fs.Int64("connect-burst", defaults.ConnectBurst, "Connection attempts allowed in a burst with --connect-rate")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this file after each run")
	watch := fs.Bool("watch", false, "Rerun whenever the database list or SQL file changes")

	if err := fs.Parse(args); err != nil {
		return defaults, err
	}

	settings := defaults
	if *configFile != "" {
		loaded, err := app.LoadConfig(*configFile, baseDir)
		if err != nil {
			return defaults, fmt.Errorf("loading config %s: %v", *configFile, err)
		}
		settings = loaded
	}

	if fs.Changed("dblist") {
		settings.DBList = *dbList
	}
	if fs.Changed("sql") {
		settings.SQLFile = *sqlFile
	}
	if fs.Changed("workers") {
		settings.Workers = *workers
	}
	if fs.Changed("log-level") {
		settings.LogLevel = *logLevel
	}
	if fs.Changed("log-format") {
		settings.LogFormat = *logFormat
	}
	if fs.Changed("driver") {
		settings.Driver = *driver
	}
	if fs.Changed("lib-dir") {
		settings.LibDir = *libDir
	}
	if fs.Changed("config-dir") {
		settings.ConfigDir = *configDir
	}
	if fs.Changed("timeout") {
		settings.Timeout = *timeout
	}
	if fs.Changed("connect-rate") {
		settings.ConnectRate = *connectRate
	}
	if fs.Changed("connect-burst") {
		settings.ConnectBurst = *connectBurst
	}
	if fs.Changed("metrics-file") {
		settings.MetricsFile = *metricsFile
	}
	if fs.Changed("watch") {
		settings.Watch = *watch
	}
	return settings, nil
}

func programDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
