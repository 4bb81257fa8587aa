package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/barryq93/dbexpiry/internal/db"
	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/barryq93/dbexpiry/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkers  = 5
	DefaultDBList   = "config/dblist.lst"
	DefaultSQLFile  = "sql/expire_check.sql"
	DefaultLogLevel = "INFO"
)

// DefaultSettings returns the settings used when neither a config file nor
// flags say otherwise. Relative file defaults are resolved against baseDir.
func DefaultSettings(baseDir string) types.Settings {
	return types.Settings{
		DBList:       filepath.Join(baseDir, DefaultDBList),
		SQLFile:      filepath.Join(baseDir, DefaultSQLFile),
		Workers:      DefaultWorkers,
		LogLevel:     DefaultLogLevel,
		LogFormat:    "text",
		Driver:       db.DriverOracle,
		ConnectBurst: 1,
	}
}

// LoadConfig reads a YAML settings file on top of DefaultSettings(baseDir).
func LoadConfig(filename, baseDir string) (types.Settings, error) {
	settings := DefaultSettings(baseDir)
	data, err := os.ReadFile(filename)
	if err != nil {
		return settings, fmt.Errorf("reading file: %v", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("unmarshaling YAML: %v", err)
	}
	return settings, nil
}

// Validate rejects settings the run cannot start with.
func Validate(s types.Settings) error {
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if s.ConnectRate < 0 {
		return fmt.Errorf("connect_rate cannot be negative")
	}
	if s.DBList == "" {
		return fmt.Errorf("dblist path is required")
	}
	if s.SQLFile == "" {
		return fmt.Errorf("sql path is required")
	}
	switch strings.ToLower(s.Driver) {
	case db.DriverOracle, db.DriverDB2:
	default:
		return fmt.Errorf("unsupported driver %q", s.Driver)
	}
	if _, err := utils.ParseLogLevel(s.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(s.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", s.LogFormat)
	}
	return nil
}

// LoadTargets reads one alias per line. Blank lines and lines starting with
// '#' are skipped; the remaining lines are trimmed and kept in file order.
func LoadTargets(filename string) ([]types.Target, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database list file not found: %s", filename)
		}
		return nil, fmt.Errorf("reading database list file: %v", err)
	}

	var targets []types.Target
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, types.Target(line))
	}
	return targets, nil
}

// LoadQuery returns the SQL file content verbatim.
func LoadQuery(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("SQL file not found: %s", filename)
		}
		return "", fmt.Errorf("reading SQL file: %v", err)
	}
	return string(data), nil
}
