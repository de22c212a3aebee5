// =============================================================================
// Accounting Export Converter - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the application
// configuration. Document type rules are NOT configured here; they live in
// the document type table (see internal/doctype), which may be overridden by
// pointing DocumentTypesFile at a YAML file.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Global application settings
//   2. Document Types (optional): Replacement for the embedded rule table
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// WorkDir holds temporary upload artifacts while they are parsed.
	// Every artifact is removed before the upload call returns.
	// Default: "./work"
	WorkDir string `yaml:"work_dir"`

	// OutputDir receives converted CSV files when WriteOutputFiles is set,
	// and is the default destination of the convert command.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// WriteOutputFiles also writes every converted artifact to
	// {output_dir}/{job-id}.csv. Downloads are always served from memory.
	// Default: false
	WriteOutputFiles bool `yaml:"write_output_files"`

	// DocumentTypesFile replaces the embedded document type table.
	// Default: "" (embedded table)
	DocumentTypesFile string `yaml:"document_types_file"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is the path to the application log file.
	// Empty logs to stderr.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the download file name.
	// Placeholders:
	//   {original}      - Uploaded file name (without extension)
	//   {source}        - Source software (e.g. myob)
	//   {dest}          - Destination software (e.g. xero)
	//   {country}       - Country code
	//   {function}      - Document type slug
	//   {currency_mode} - single or multi
	//   {job}           - Job id
	//   {uuid}          - A random UUID
	//   {timestamp}     - Conversion timestamp (YYYYMMDD_HHMMSS)
	//   {date}, {time}  - Date / time parts of the timestamp
	// Default: "{original}_{source}-to-{dest}_{country}_{function}_{timestamp}.csv"
	OutputNameFormat string `yaml:"output_name_format"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files the convert command
	// processes at once.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError keeps the convert command going after a file fails.
	// Default: true
	ContinueOnError *bool `yaml:"continue_on_error"`

	// CSVSettings apply to every CSV upload.
	CSVSettings CSVSettings `yaml:"csv_settings"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Jobs configures the conversion job store.
	Jobs JobsConfig `yaml:"jobs"`

	// History configures the download history store.
	History HistoryConfig `yaml:"history"`
}

// =============================================================================
// NESTED SETTINGS
// =============================================================================

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the character used to separate fields in the CSV.
	// Common values: "," (comma), "|" (pipe), "\t" (tab), ";"
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Encoding is the character encoding of the CSV file.
	// Supported: "UTF-8", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddr is the address the API binds to.
	// Default: ":8080"
	ListenAddr string `yaml:"listen_addr"`

	// BodyLimitMB caps request bodies (uploads).
	// Default: 32
	BodyLimitMB int `yaml:"body_limit_mb"`
}

// JobsConfig configures the job store eviction policy.
type JobsConfig struct {
	// TTL is how long an untouched job survives.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`

	// MaxJobs caps live jobs; the least recently touched job is evicted.
	// Default: 500
	MaxJobs int `yaml:"max_jobs"`

	// SweepInterval is how often expired jobs are removed.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HistoryConfig configures the download history store.
type HistoryConfig struct {
	// DBPath is the SQLite database file. Empty disables history.
	// Default: "./data/history.db"
	DBPath string `yaml:"db_path"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *MainConfig {
	cfg := &MainConfig{}
	applyMainConfigDefaults(cfg)
	return cfg
}

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//   - required: When false, a missing file yields the defaults.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	// Read the configuration file.
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if err := validateMainConfig(cfg); err != nil {
				return nil, fmt.Errorf("invalid configuration: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse the YAML.
	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply default values.
	applyMainConfigDefaults(&config)

	// Validate the configuration.
	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.WorkDir == "" {
		config.WorkDir = "./work"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{original}_{source}-to-{dest}_{country}_{function}_{timestamp}.csv"
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}
	if config.ContinueOnError == nil {
		yes := true
		config.ContinueOnError = &yes
	}

	// CSV settings defaults.
	if config.CSVSettings.Delimiter == "" {
		config.CSVSettings.Delimiter = ","
	}
	if config.CSVSettings.Encoding == "" {
		config.CSVSettings.Encoding = "UTF-8"
	}

	// Server defaults.
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":8080"
	}
	if config.Server.BodyLimitMB == 0 {
		config.Server.BodyLimitMB = 32
	}

	// Job store defaults.
	if config.Jobs.TTL == 0 {
		config.Jobs.TTL = time.Hour
	}
	if config.Jobs.MaxJobs == 0 {
		config.Jobs.MaxJobs = 500
	}
	if config.Jobs.SweepInterval == 0 {
		config.Jobs.SweepInterval = time.Minute
	}

	if config.History.DBPath == "" {
		config.History.DBPath = "./data/history.db"
	}
}

// validateMainConfig validates the main configuration and creates the
// working directories.
func validateMainConfig(config *MainConfig) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}

	switch normalizeEncoding(config.CSVSettings.Encoding) {
	case "utf8", "iso88591", "latin1", "windows1252", "cp1252":
	default:
		return fmt.Errorf("unsupported csv encoding %q", config.CSVSettings.Encoding)
	}

	if config.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}
	if config.Jobs.MaxJobs < 1 {
		return fmt.Errorf("jobs.max_jobs must be at least 1")
	}
	if config.Jobs.TTL < 0 || config.Jobs.SweepInterval < 0 {
		return fmt.Errorf("jobs durations must not be negative")
	}

	// Validate that required directories exist.
	dirs := []string{
		config.WorkDir,
		config.OutputDir,
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			// Create the directory if it doesn't exist.
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// normalizeEncoding lower-cases an encoding name and drops separators.
func normalizeEncoding(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
}
