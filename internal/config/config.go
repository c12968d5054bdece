// =============================================================================
// NFe to XLSX Converter - Configuration Module
// =============================================================================
//
// This module loads the main application configuration.
//
// SOURCES (later wins):
//   1. Built-in defaults
//   2. The YAML config file (optional)
//   3. Environment variables prefixed with NFEXLSX_, dots replaced by
//      underscores (NFEXLSX_SERVER_ADDR overrides server.addr)
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NFEXLSX"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for *.xml files by the process command.
	InputDir string `mapstructure:"input_dir"`

	// OutputDir receives workbooks and error logs.
	OutputDir string `mapstructure:"output_dir"`

	// InputArchiveDir receives processed XML files.
	InputArchiveDir string `mapstructure:"input_archive_dir"`

	// OutputArchiveDir receives a copy of every workbook.
	OutputArchiveDir string `mapstructure:"output_archive_dir"`

	// TemplatesDir holds named column templates (*.yaml, *.yml, *.xlsx).
	TemplatesDir string `mapstructure:"templates_dir"`

	// ArchiveOnSuccess moves inputs to InputArchiveDir after a run.
	ArchiveOnSuccess bool `mapstructure:"archive_on_success"`

	// UseTimestampSubdirs archives into YYYY/MM/DD subdirectories.
	UseTimestampSubdirs bool `mapstructure:"use_timestamp_subdirs"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an optional log file, written in addition to stdout.
	LogFile string `mapstructure:"log_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// =========================================================================
	// SECTIONS
	// =========================================================================

	Server     ServerConfig     `mapstructure:"server"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Store      StoreConfig      `mapstructure:"store"`
	Sheets     SheetsConfig     `mapstructure:"sheets"`

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProcessingConfig limits batches.
type ProcessingConfig struct {
	MaxFiles       int           `mapstructure:"max_files"`
	MaxFileSizeMB  int           `mapstructure:"max_file_size_mb"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
}

// MaxFileSize returns the file size limit in bytes.
func (p ProcessingConfig) MaxFileSize() int64 {
	return int64(p.MaxFileSizeMB) << 20
}

// TemplatesConfig configures template resolution.
type TemplatesConfig struct {
	// UnknownColumns is "drop" or "reject".
	UnknownColumns string `mapstructure:"unknown_columns"`
}

// StoreConfig selects the batch store.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SheetsConfig enables the Google Sheets publisher.
type SheetsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	IncludeHeader   bool   `mapstructure:"include_header"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration.
//
// PARAMETERS:
//   - configPath: the YAML file to read. A missing file is not an error;
//     defaults and environment variables still apply.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be parsed or the result is invalid.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	v := viper.New()
	applyMainConfigDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var used string
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			used = v.ConfigFileUsed()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config MainConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.ConfigFile = used

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults registers every key with its default value. Keys
// must be registered for environment overrides to reach Unmarshal.
func applyMainConfigDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "./input")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("input_archive_dir", "./input_archive")
	v.SetDefault("output_archive_dir", "./output_archive")
	v.SetDefault("templates_dir", "./templates")
	v.SetDefault("archive_on_success", true)
	v.SetDefault("use_timestamp_subdirs", false)

	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("processing.max_files", 50)
	v.SetDefault("processing.max_file_size_mb", 10)
	v.SetDefault("processing.extract_timeout", "30s")

	v.SetDefault("templates.unknown_columns", "drop")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "./data/batches.db")

	v.SetDefault("sheets.enabled", false)
	v.SetDefault("sheets.credentials_file", "credentials.json")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.sheet_name", "Notas Fiscais")
	v.SetDefault("sheets.include_header", false)
}

// validateMainConfig validates the main configuration.
func validateMainConfig(config *MainConfig) error {
	var problems []string

	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", config.LogLevel))
	}

	if config.Processing.MaxFiles <= 0 {
		problems = append(problems, "processing.max_files must be positive")
	}
	if config.Processing.MaxFileSizeMB <= 0 {
		problems = append(problems, "processing.max_file_size_mb must be positive")
	}
	if config.Processing.ExtractTimeout < 0 {
		problems = append(problems, "processing.extract_timeout must not be negative")
	}

	switch config.Templates.UnknownColumns {
	case "drop", "reject":
	default:
		problems = append(problems, fmt.Sprintf("templates.unknown_columns %q is not drop or reject", config.Templates.UnknownColumns))
	}

	switch config.Store.Driver {
	case "memory":
	case "sqlite":
		if config.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not memory or sqlite", config.Store.Driver))
	}

	if config.Sheets.Enabled {
		if config.Sheets.SpreadsheetID == "" {
			problems = append(problems, "sheets.spreadsheet_id is required when sheets are enabled")
		}
		if config.Sheets.CredentialsFile == "" {
			problems = append(problems, "sheets.credentials_file is required when sheets are enabled")
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
