package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMaxFileSize    = 100 * 1024 * 1024 // 100MB
	DefaultZoom           = 3.0
	DefaultMergeThreshold = 0.25
	DefaultMinSamples     = 3
	DefaultWorkers        = 4
	DefaultRasterCommand  = "pdftoppm"
	DefaultOCRLanguage    = "eng"
	DefaultStorePath      = "formfill.db"
	DefaultModelPath      = "formfill-model.json"

	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "FORMFILL"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Strategy names accepted in detect.strategies, in default run order.
var DefaultStrategies = []string{
	"native_widget",
	"text_pattern",
	"dotted_leader",
	"underline",
	"rectangular",
	"whitespace",
}

// Config holds all configuration for the form autofill service
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// DocumentDirectory is where the MCP tools resolve relative paths.
	DocumentDirectory string
	ConfigFile        string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	MaxFileSize int64 // Maximum input file size in bytes

	// Zoom is the raster upscaling factor relative to page units. One
	// value is used for every page of every run.
	Zoom float64

	Merge      MergeConfig
	Detect     DetectConfig
	OCR        OCRConfig
	Raster     RasterConfig
	Classifier ClassifierConfig
	Store      StoreConfig
}

// MergeConfig tunes the deduplication engine
type MergeConfig struct {
	Threshold                    float64
	SuppressGeometricWithWidgets bool
}

// DetectConfig selects and tunes detection strategies
type DetectConfig struct {
	Strategies      []string
	Workers         int
	MinWhitespacePx int
	BlankMeanMin    float64
	DarkRatioMax    float64
}

// OCRConfig configures the Tesseract engine
type OCRConfig struct {
	Enabled       bool
	Language      string
	MinConfidence float64
}

// RasterConfig configures PDF page rendering
type RasterConfig struct {
	Command string
}

// ClassifierConfig configures model and template persistence
type ClassifierConfig struct {
	ModelPath     string
	TemplatesPath string
	MinSamples    int
}

// StoreConfig configures the SQLite document store
type StoreConfig struct {
	Path string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio,
		Host:              DefaultHost,
		Port:              DefaultPort,
		DocumentDirectory: currentDir,
		Version:           "1.0.0",
		ServerName:        "mcp-form-autofill",
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		MaxFileSize:       DefaultMaxFileSize,
		Zoom:              DefaultZoom,
		Merge: MergeConfig{
			Threshold:                    DefaultMergeThreshold,
			SuppressGeometricWithWidgets: true,
		},
		Detect: DetectConfig{
			Strategies:      append([]string(nil), DefaultStrategies...),
			Workers:         DefaultWorkers,
			MinWhitespacePx: 150,
			BlankMeanMin:    220,
			DarkRatioMax:    0.05,
		},
		OCR: OCRConfig{
			Enabled:       true,
			Language:      DefaultOCRLanguage,
			MinConfidence: 55,
		},
		Raster: RasterConfig{
			Command: DefaultRasterCommand,
		},
		Classifier: ClassifierConfig{
			ModelPath:  DefaultModelPath,
			MinSamples: DefaultMinSamples,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
	}
}

// LoadFromFlags parses the process command line and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	DefineFlags(pflag.CommandLine, cfg)
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	return Load(v, pflag.CommandLine, cfg)
}

// Load resolves cfg from defaults, an optional config file, environment
// variables and the already parsed flag set, in increasing precedence.
func Load(v *viper.Viper, fs *pflag.FlagSet, cfg *Config) (*Config, error) {
	setupViperEnvironment(v, cfg)
	if fs != nil {
		bindFlagsToViper(v, fs)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	populateConfigFromViper(v, cfg)

	if cfg.DocumentDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.DocumentDirectory); err == nil {
			cfg.DocumentDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// flagKeys maps command line flag names to viper keys.
var flagKeys = map[string]string{
	"config":            "config",
	"mode":              "mode",
	"host":              "host",
	"port":              "port",
	"dir":               "dir",
	"loglevel":          "log_level",
	"logformat":         "log_format",
	"maxfilesize":       "max_file_size",
	"zoom":              "zoom",
	"merge-threshold":   "merge.threshold",
	"strategies":        "detect.strategies",
	"workers":           "detect.workers",
	"ocr":               "ocr.enabled",
	"ocr-lang":          "ocr.language",
	"raster-command":    "raster.command",
	"model":             "classifier.model_path",
	"templates":         "classifier.templates_path",
	"db":                "store.path",
	"min-train-samples": "classifier.min_samples",
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", cfg.ConfigFile)
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("dir", cfg.DocumentDirectory)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("max_file_size", cfg.MaxFileSize)
	v.SetDefault("zoom", cfg.Zoom)
	v.SetDefault("merge.threshold", cfg.Merge.Threshold)
	v.SetDefault("merge.suppress_geometric_with_widgets", cfg.Merge.SuppressGeometricWithWidgets)
	v.SetDefault("detect.strategies", cfg.Detect.Strategies)
	v.SetDefault("detect.workers", cfg.Detect.Workers)
	v.SetDefault("detect.min_whitespace_px", cfg.Detect.MinWhitespacePx)
	v.SetDefault("detect.blank_mean_min", cfg.Detect.BlankMeanMin)
	v.SetDefault("detect.dark_ratio_max", cfg.Detect.DarkRatioMax)
	v.SetDefault("ocr.enabled", cfg.OCR.Enabled)
	v.SetDefault("ocr.language", cfg.OCR.Language)
	v.SetDefault("ocr.min_confidence", cfg.OCR.MinConfidence)
	v.SetDefault("raster.command", cfg.Raster.Command)
	v.SetDefault("classifier.model_path", cfg.Classifier.ModelPath)
	v.SetDefault("classifier.templates_path", cfg.Classifier.TemplatesPath)
	v.SetDefault("classifier.min_samples", cfg.Classifier.MinSamples)
	v.SetDefault("store.path", cfg.Store.Path)
}

// DefineFlags registers every configuration flag on fs
func DefineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("config", cfg.ConfigFile, "Path to a YAML configuration file")
	fs.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for a long-running server")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("dir", cfg.DocumentDirectory, "Directory relative document paths are resolved against")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("logformat", cfg.LogFormat, "Log format (text, json)")
	fs.Int64("maxfilesize", cfg.MaxFileSize, "Maximum input file size in bytes")
	fs.Float64("zoom", cfg.Zoom, "Raster zoom factor relative to page units")
	fs.Float64("merge-threshold", cfg.Merge.Threshold, "Overlap ratio above which candidates are merged")
	fs.StringSlice("strategies", cfg.Detect.Strategies, "Ordered detection strategies to run")
	fs.Int("workers", cfg.Detect.Workers, "Pages processed concurrently")
	fs.Bool("ocr", cfg.OCR.Enabled, "Use Tesseract OCR when available")
	fs.String("ocr-lang", cfg.OCR.Language, "Tesseract language, e.g. eng or eng+fra")
	fs.String("raster-command", cfg.Raster.Command, "Command used to render PDF pages")
	fs.String("model", cfg.Classifier.ModelPath, "Path of the trained classifier model")
	fs.String("templates", cfg.Classifier.TemplatesPath, "Path of the document template YAML file")
	fs.String("db", cfg.Store.Path, "SQLite database path")
	fs.Int("min-train-samples", cfg.Classifier.MinSamples, "Minimum samples required to train")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	for flagName, key := range flagKeys {
		if f := fs.Lookup(flagName); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP Form Autofill - detect, classify and fill form fields in PDFs and scans\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                   # stdio mode, current directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/forms --db=/srv/forms.db # custom directory and store\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --zoom=2 --strategies=native_widget,text_pattern\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_MODE, %s_DIR, %s_LOG_LEVEL, %s_ZOOM, %s_MERGE_THRESHOLD, %s_STORE_PATH ...\n",
			EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.ConfigFile = v.GetString("config")
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.DocumentDirectory = v.GetString("dir")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFormat = v.GetString("log_format")
	cfg.MaxFileSize = v.GetInt64("max_file_size")
	cfg.Zoom = v.GetFloat64("zoom")
	cfg.Merge.Threshold = v.GetFloat64("merge.threshold")
	cfg.Merge.SuppressGeometricWithWidgets = v.GetBool("merge.suppress_geometric_with_widgets")
	cfg.Detect.Strategies = v.GetStringSlice("detect.strategies")
	cfg.Detect.Workers = v.GetInt("detect.workers")
	cfg.Detect.MinWhitespacePx = v.GetInt("detect.min_whitespace_px")
	cfg.Detect.BlankMeanMin = v.GetFloat64("detect.blank_mean_min")
	cfg.Detect.DarkRatioMax = v.GetFloat64("detect.dark_ratio_max")
	cfg.OCR.Enabled = v.GetBool("ocr.enabled")
	cfg.OCR.Language = v.GetString("ocr.language")
	cfg.OCR.MinConfidence = v.GetFloat64("ocr.min_confidence")
	cfg.Raster.Command = v.GetString("raster.command")
	cfg.Classifier.ModelPath = v.GetString("classifier.model_path")
	cfg.Classifier.TemplatesPath = v.GetString("classifier.templates_path")
	cfg.Classifier.MinSamples = v.GetInt("classifier.min_samples")
	cfg.Store.Path = v.GetString("store.path")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.DocumentDirectory == "" {
		return errors.New("document directory cannot be empty")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.Zoom <= 0 {
		return fmt.Errorf("zoom must be positive, got %g", c.Zoom)
	}

	if c.Merge.Threshold <= 0 || c.Merge.Threshold > 1 {
		return fmt.Errorf("merge threshold must be in (0, 1], got %g", c.Merge.Threshold)
	}

	if len(c.Detect.Strategies) == 0 {
		return errors.New("at least one detection strategy is required")
	}
	known := make(map[string]bool, len(DefaultStrategies))
	for _, s := range DefaultStrategies {
		known[s] = true
	}
	for _, s := range c.Detect.Strategies {
		if !known[s] {
			return fmt.Errorf("unknown detection strategy: %s", s)
		}
	}

	if c.Detect.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	if c.Detect.DarkRatioMax <= 0 || c.Detect.DarkRatioMax >= 1 {
		return fmt.Errorf("dark ratio max must be in (0, 1), got %g", c.Detect.DarkRatioMax)
	}

	if c.Classifier.MinSamples < 1 {
		return errors.New("minimum training samples must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	return nil
}

// EnsureDirectories creates parent directories for the store and model files
func (c *Config) EnsureDirectories() error {
	for _, p := range []string{c.Store.Path, c.Classifier.ModelPath} {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ResolvePath makes a relative document path absolute against the
// configured document directory.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DocumentDirectory, path)
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Dir: %s, Zoom: %g, MergeThreshold: %g, Strategies: %v, Store: %s, LogLevel: %s}",
		c.Mode, c.DocumentDirectory, c.Zoom, c.Merge.Threshold, c.Detect.Strategies, c.Store.Path, c.LogLevel)
}

// IsServerMode returns true if the server is running in server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
