package config

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	AutoSave  AutoSaveConfig  `yaml:"autosave" mapstructure:"autosave"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
}

// ServerConfig HTTP API configuration
type ServerConfig struct {
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	APIPath string `yaml:"api_path" mapstructure:"api_path"`
	// WebSocket enables the workspace change feed
	WebSocket bool `yaml:"websocket" mapstructure:"websocket"`
	// MaxBodyBytes limits the size of accepted request bodies (0 = unlimited)
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// AuthToken protects the API when set; "auto" generates one at startup
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// OutputConfig controls CLI output style
type OutputConfig struct {
	Mode     string         `yaml:"mode" mapstructure:"mode"`
	Silence  bool           `yaml:"silence" mapstructure:"silence"`
	Locale   string         `yaml:"locale" mapstructure:"locale"`
	BodyView BodyViewConfig `yaml:"body_view" mapstructure:"body_view"`
	// RedactHeaders lists header names masked when printing
	RedactHeaders []string `yaml:"redact_headers" mapstructure:"redact_headers"`
}

// StorageConfig persistence parameters
type StorageConfig struct {
	Driver       string        `yaml:"driver" mapstructure:"driver"`
	Path         string        `yaml:"path" mapstructure:"path"`
	MaxSnapshots int           `yaml:"max_snapshots" mapstructure:"max_snapshots"`
	Retention    time.Duration `yaml:"retention" mapstructure:"retention"`
}

// AutoSaveConfig workspace auto-save policy
type AutoSaveConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// TransportConfig outgoing request client configuration. Timeouts are in
// seconds.
type TransportConfig struct {
	Timeout               int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRedirects          int    `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxResponseBytes      int64  `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
	MaxIdleConns          int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int    `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost       int    `yaml:"max_conns_per_host" mapstructure:"max_conns_per_host"`
	IdleConnTimeout       int    `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	ResponseHeaderTimeout int    `yaml:"response_header_timeout" mapstructure:"response_header_timeout"`
	TLSHandshakeTimeout   int    `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`
	ExpectContinueTimeout int    `yaml:"expect_continue_timeout" mapstructure:"expect_continue_timeout"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
	UserAgent             string `yaml:"user_agent" mapstructure:"user_agent"`
	// DefaultHeaders are added to every request unless the request sets them
	DefaultHeaders map[string]string `yaml:"default_headers" mapstructure:"default_headers"`
}

// BodyViewConfig controls body formatting
type BodyViewConfig struct {
	Enable          bool             `yaml:"enable" mapstructure:"enable"`
	MaxPreviewBytes int              `yaml:"max_preview_bytes" mapstructure:"max_preview_bytes"`
	FullBody        bool             `yaml:"full_body" mapstructure:"full_body"`
	Json            JSONViewConfig   `yaml:"json" mapstructure:"json"`
	Form            FormViewConfig   `yaml:"form" mapstructure:"form"`
	XML             XMLViewConfig    `yaml:"xml" mapstructure:"xml"`
	HTML            HTMLViewConfig   `yaml:"html" mapstructure:"html"`
	Binary          BinaryViewConfig `yaml:"binary" mapstructure:"binary"`
}

// JSONViewConfig JSON display options
type JSONViewConfig struct {
	Enable         bool `yaml:"enable" mapstructure:"enable"`
	Pretty         bool `yaml:"pretty" mapstructure:"pretty"`
	MaxIndentBytes int  `yaml:"max_indent_bytes" mapstructure:"max_indent_bytes"`
}

// FormViewConfig form display options
type FormViewConfig struct {
	Enable bool `yaml:"enable" mapstructure:"enable"`
}

// XMLViewConfig XML display options
type XMLViewConfig struct {
	Enable       bool `yaml:"enable" mapstructure:"enable"`
	Pretty       bool `yaml:"pretty" mapstructure:"pretty"`
	StripControl bool `yaml:"strip_control" mapstructure:"strip_control"`
}

// HTMLViewConfig HTML display options
type HTMLViewConfig struct {
	Enable       bool `yaml:"enable" mapstructure:"enable"`
	Pretty       bool `yaml:"pretty" mapstructure:"pretty"`
	StripControl bool `yaml:"strip_control" mapstructure:"strip_control"`
}

// BinaryViewConfig binary display options
type BinaryViewConfig struct {
	HexPreviewEnable bool `yaml:"hex_preview_enable" mapstructure:"hex_preview_enable"`
	HexPreviewBytes  int  `yaml:"hex_preview_bytes" mapstructure:"hex_preview_bytes"`
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	// Set default values
	setDefaults(v)

	// Set environment variable prefix, REQDECK_SERVER_PORT maps to server.port
	v.SetEnvPrefix("REQDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set configuration file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Configuration file search paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reqdeck")
		v.AddConfigPath("/etc/reqdeck")
	}

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Config file loaded: %s", v.ConfigFileUsed())
	}

	// Unmarshal to struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Ensure zero-value fields use default values (Unmarshal doesn't apply defaults to zero-value fields)
	applyDefaults(&config, v)

	return &config, nil
}

// applyDefaults apply default values to zero-value fields in the struct.
// Command line flags are bound to viper keys in main.go, so reading
// through v keeps their priority.
func applyDefaults(cfg *Config, v *viper.Viper) {
	// Server configuration
	if cfg.Server.Host == "" {
		cfg.Server.Host = v.GetString("server.host")
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if cfg.Server.APIPath == "" {
		cfg.Server.APIPath = v.GetString("server.api_path")
	}
	cfg.Server.WebSocket = v.GetBool("server.websocket")
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = v.GetInt64("server.max_body_bytes")
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	if cfg.Server.AuthToken == "" {
		cfg.Server.AuthToken = v.GetString("server.auth_token")
	}

	// Log configuration
	if cfg.Log.Level == "" {
		cfg.Log.Level = v.GetString("log.level")
	}

	// For bool fields, we always use viper's value since it correctly handles
	// both config file values and defaults.
	cfg.Log.FileLogging.Enable = v.GetBool("log.file_logging.enable")
	cfg.Log.FileLogging.Compress = v.GetBool("log.file_logging.compress")
	if cfg.Log.FileLogging.Path == "" {
		cfg.Log.FileLogging.Path = v.GetString("log.file_logging.path")
	}
	if cfg.Log.FileLogging.MaxSizeMB == 0 {
		cfg.Log.FileLogging.MaxSizeMB = v.GetInt("log.file_logging.max_size_mb")
	}
	if cfg.Log.FileLogging.MaxBackups == 0 {
		cfg.Log.FileLogging.MaxBackups = v.GetInt("log.file_logging.max_backups")
	}
	if cfg.Log.FileLogging.MaxAgeDays == 0 {
		cfg.Log.FileLogging.MaxAgeDays = v.GetInt("log.file_logging.max_age_days")
	}

	// Output configuration
	if cfg.Output.Mode == "" {
		cfg.Output.Mode = v.GetString("output.mode")
	}
	cfg.Output.Silence = v.GetBool("output.silence")
	if cfg.Output.Locale == "" {
		cfg.Output.Locale = v.GetString("output.locale")
	}
	if len(cfg.Output.RedactHeaders) == 0 {
		cfg.Output.RedactHeaders = v.GetStringSlice("output.redact_headers")
	}
	cfg.Output.RedactHeaders = normalizeHeaderList(cfg.Output.RedactHeaders)
	cfg.Output.BodyView.Enable = v.GetBool("output.body_view.enable")
	if cfg.Output.BodyView.MaxPreviewBytes == 0 {
		cfg.Output.BodyView.MaxPreviewBytes = v.GetInt("output.body_view.max_preview_bytes")
	}
	cfg.Output.BodyView.FullBody = v.GetBool("output.body_view.full_body")
	cfg.Output.BodyView.Json.Enable = v.GetBool("output.body_view.json.enable")
	cfg.Output.BodyView.Json.Pretty = v.GetBool("output.body_view.json.pretty")
	if cfg.Output.BodyView.Json.MaxIndentBytes == 0 {
		cfg.Output.BodyView.Json.MaxIndentBytes = v.GetInt("output.body_view.json.max_indent_bytes")
	}
	cfg.Output.BodyView.Form.Enable = v.GetBool("output.body_view.form.enable")
	cfg.Output.BodyView.XML.Enable = v.GetBool("output.body_view.xml.enable")
	cfg.Output.BodyView.XML.Pretty = v.GetBool("output.body_view.xml.pretty")
	cfg.Output.BodyView.XML.StripControl = v.GetBool("output.body_view.xml.strip_control")
	cfg.Output.BodyView.HTML.Enable = v.GetBool("output.body_view.html.enable")
	cfg.Output.BodyView.HTML.Pretty = v.GetBool("output.body_view.html.pretty")
	cfg.Output.BodyView.HTML.StripControl = v.GetBool("output.body_view.html.strip_control")
	cfg.Output.BodyView.Binary.HexPreviewEnable = v.GetBool("output.body_view.binary.hex_preview_enable")
	if cfg.Output.BodyView.Binary.HexPreviewBytes == 0 {
		cfg.Output.BodyView.Binary.HexPreviewBytes = v.GetInt("output.body_view.binary.hex_preview_bytes")
	}

	// Storage configuration
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = v.GetString("storage.driver")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = v.GetString("storage.path")
	}
	if cfg.Storage.MaxSnapshots == 0 {
		cfg.Storage.MaxSnapshots = v.GetInt("storage.max_snapshots")
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = v.GetDuration("storage.retention")
	}

	// Auto-save configuration
	cfg.AutoSave.Enabled = v.GetBool("autosave.enabled")
	if cfg.AutoSave.Debounce == 0 {
		cfg.AutoSave.Debounce = v.GetDuration("autosave.debounce")
	}
	if cfg.AutoSave.Interval == 0 {
		cfg.AutoSave.Interval = v.GetDuration("autosave.interval")
	}

	// Transport configuration
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = v.GetInt("transport.timeout")
	}
	if cfg.Transport.MaxRedirects == 0 {
		cfg.Transport.MaxRedirects = v.GetInt("transport.max_redirects")
	}
	if cfg.Transport.MaxResponseBytes == 0 {
		cfg.Transport.MaxResponseBytes = v.GetInt64("transport.max_response_bytes")
	}
	if cfg.Transport.MaxIdleConns == 0 {
		cfg.Transport.MaxIdleConns = v.GetInt("transport.max_idle_conns")
	}
	if cfg.Transport.MaxIdleConnsPerHost == 0 {
		cfg.Transport.MaxIdleConnsPerHost = v.GetInt("transport.max_idle_conns_per_host")
	}
	if cfg.Transport.MaxConnsPerHost == 0 {
		cfg.Transport.MaxConnsPerHost = v.GetInt("transport.max_conns_per_host")
	}
	if cfg.Transport.IdleConnTimeout == 0 {
		cfg.Transport.IdleConnTimeout = v.GetInt("transport.idle_conn_timeout")
	}
	if cfg.Transport.ResponseHeaderTimeout == 0 {
		cfg.Transport.ResponseHeaderTimeout = v.GetInt("transport.response_header_timeout")
	}
	if cfg.Transport.TLSHandshakeTimeout == 0 {
		cfg.Transport.TLSHandshakeTimeout = v.GetInt("transport.tls_handshake_timeout")
	}
	if cfg.Transport.ExpectContinueTimeout == 0 {
		cfg.Transport.ExpectContinueTimeout = v.GetInt("transport.expect_continue_timeout")
	}
	cfg.Transport.TLSInsecureSkipVerify = v.GetBool("transport.tls_insecure_skip_verify")
	if cfg.Transport.UserAgent == "" {
		cfg.Transport.UserAgent = v.GetString("transport.user_agent")
	}
	if len(cfg.Transport.DefaultHeaders) == 0 {
		cfg.Transport.DefaultHeaders = v.GetStringMapString("transport.default_headers")
	}
	cfg.Transport.DefaultHeaders = canonicalizeHeaders(cfg.Transport.DefaultHeaders)
}

// setDefaults set default configuration values
func setDefaults(v *viper.Viper) {
	// Server default configuration
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 38889)
	v.SetDefault("server.api_path", "/api")
	v.SetDefault("server.websocket", true)
	v.SetDefault("server.max_body_bytes", int64(10*1024*1024))
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.auth_token", "")

	// Log default configuration
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./reqdeck.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)

	// Output defaults
	v.SetDefault("output.mode", "console")
	v.SetDefault("output.silence", false)
	v.SetDefault("output.locale", "en")
	v.SetDefault("output.redact_headers", []string{"authorization", "proxy-authorization", "cookie", "set-cookie"})
	v.SetDefault("output.body_view.enable", true)
	v.SetDefault("output.body_view.max_preview_bytes", int(32*1024))
	v.SetDefault("output.body_view.full_body", false)
	v.SetDefault("output.body_view.json.enable", true)
	v.SetDefault("output.body_view.json.pretty", true)
	v.SetDefault("output.body_view.json.max_indent_bytes", int(128*1024))
	v.SetDefault("output.body_view.form.enable", true)
	v.SetDefault("output.body_view.xml.enable", true)
	v.SetDefault("output.body_view.xml.pretty", true)
	v.SetDefault("output.body_view.xml.strip_control", true)
	v.SetDefault("output.body_view.html.enable", true)
	v.SetDefault("output.body_view.html.pretty", false)
	v.SetDefault("output.body_view.html.strip_control", true)
	v.SetDefault("output.body_view.binary.hex_preview_enable", false)
	v.SetDefault("output.body_view.binary.hex_preview_bytes", 256)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/reqdeck.db")
	v.SetDefault("storage.max_snapshots", 20)
	v.SetDefault("storage.retention", "0s")

	// Auto-save defaults
	v.SetDefault("autosave.enabled", true)
	v.SetDefault("autosave.debounce", "1s")
	v.SetDefault("autosave.interval", "30s")

	// Transport defaults
	v.SetDefault("transport.timeout", 30)
	v.SetDefault("transport.max_redirects", 10)
	v.SetDefault("transport.max_response_bytes", int64(10*1024*1024))
	v.SetDefault("transport.max_idle_conns", 100)
	v.SetDefault("transport.max_idle_conns_per_host", 10)
	v.SetDefault("transport.max_conns_per_host", 0)
	v.SetDefault("transport.idle_conn_timeout", 90)
	v.SetDefault("transport.response_header_timeout", 0)
	v.SetDefault("transport.tls_handshake_timeout", 10)
	v.SetDefault("transport.expect_continue_timeout", 1)
	v.SetDefault("transport.tls_insecure_skip_verify", false)
	v.SetDefault("transport.user_agent", "reqdeck")
	v.SetDefault("transport.default_headers", map[string]string{})
}

// Validate checks the configuration and fills normalized values
func (c *Config) Validate() error {
	// Validate port
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	// Validate API path
	if c.Server.APIPath == "" {
		return fmt.Errorf("server api path cannot be empty")
	}
	if !strings.HasPrefix(c.Server.APIPath, "/") {
		return fmt.Errorf("server api path must start with '/'")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server max body bytes cannot be negative")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server shutdown timeout cannot be negative")
	}

	switch strings.ToLower(c.Output.Mode) {
	case "", "console", "json":
		if c.Output.Mode == "" {
			c.Output.Mode = "console"
		}
	default:
		return fmt.Errorf("output mode must be 'console' or 'json'")
	}
	if err := validateBodyViewConfig(&c.Output.BodyView); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Driver) == "" {
			c.Storage.Driver = "sqlite"
		}
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("storage driver must be sqlite or memory")
	}
	if c.Storage.MaxSnapshots < 0 {
		return fmt.Errorf("storage max_snapshots cannot be negative")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage retention cannot be negative")
	}

	if c.AutoSave.Debounce < 0 {
		return fmt.Errorf("autosave debounce cannot be negative")
	}
	if c.AutoSave.Interval < 0 {
		return fmt.Errorf("autosave interval cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	// Validate file log configuration
	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("log file max backups cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return fmt.Errorf("log file max age cannot be negative")
		}
	}

	// Validate transport configuration
	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout cannot be negative")
	}
	if c.Transport.MaxRedirects < 0 {
		return fmt.Errorf("transport max redirects cannot be negative")
	}
	if c.Transport.MaxResponseBytes < 0 {
		return fmt.Errorf("transport max response bytes cannot be negative")
	}
	for name := range c.Transport.DefaultHeaders {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("transport default_headers contains an empty name")
		}
	}

	return nil
}

func validateBodyViewConfig(cfg *BodyViewConfig) error {
	if cfg.MaxPreviewBytes < 0 {
		return fmt.Errorf("output.body_view.max_preview_bytes cannot be negative")
	}
	if cfg.Json.MaxIndentBytes < 0 {
		return fmt.Errorf("output.body_view.json.max_indent_bytes cannot be negative")
	}
	if cfg.Binary.HexPreviewBytes < 0 {
		return fmt.Errorf("output.body_view.binary.hex_preview_bytes cannot be negative")
	}
	return nil
}

func canonicalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return headers
	}
	canonical := make(map[string]string, len(headers))
	for key, value := range headers {
		canonical[http.CanonicalHeaderKey(key)] = value
	}
	return canonical
}

func normalizeHeaderList(list []string) []string {
	if len(list) == 0 {
		return list
	}
	set := make(map[string]struct{}, len(list))
	result := make([]string, 0, len(list))
	for _, h := range list {
		norm := strings.ToLower(strings.TrimSpace(h))
		if norm == "" {
			continue
		}
		if _, exists := set[norm]; exists {
			continue
		}
		set[norm] = struct{}{}
		result = append(result, norm)
	}
	return result
}
