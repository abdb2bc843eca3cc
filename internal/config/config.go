package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: PROTOKB_DRIVE_FOLDER_ID
// sets drive.folder_id.
const EnvPrefix = "PROTOKB"

// Config holds all application configuration.
type Config struct {
	Server        Server        `mapstructure:"server"`
	Drive         Drive         `mapstructure:"drive"`
	Airtable      Airtable      `mapstructure:"airtable"`
	LLM           LLM           `mapstructure:"llm"`
	Chat          Chat          `mapstructure:"chat"`
	Extract       Extract       `mapstructure:"extract"`
	Ingestion     Ingestion     `mapstructure:"ingestion"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Storage       Storage       `mapstructure:"storage"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Server holds HTTP API configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Drive holds the remote document folder configuration.
type Drive struct {
	ServiceAccountEmail string        `mapstructure:"service_account_email"`
	PrivateKey          string        `mapstructure:"private_key"`
	FolderID            string        `mapstructure:"folder_id"`
	ListTimeout         time.Duration `mapstructure:"list_timeout"`
	DownloadTimeout     time.Duration `mapstructure:"download_timeout"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
}

// Airtable holds tabular catalog configuration.
type Airtable struct {
	BaseURL           string        `mapstructure:"base_url"`
	BaseID            string        `mapstructure:"base_id"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Tables            Tables        `mapstructure:"tables"`
}

// Tables names the catalog tables.
type Tables struct {
	Protocols  string `mapstructure:"protocols"`
	Substances string `mapstructure:"substances"`
	Symptoms   string `mapstructure:"symptoms"`
}

// LLM holds language-model configuration for chat.
type LLM struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"` // "openai" or "gemini"
	BaseURL     string        `mapstructure:"base_url"`
	SocketPath  string        `mapstructure:"socket_path"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Chat holds chat session limits.
type Chat struct {
	MaxSessions int `mapstructure:"max_sessions"`
	MaxTurns    int `mapstructure:"max_turns"`
}

// Extract holds text extraction options.
type Extract struct {
	PDFText bool `mapstructure:"pdf_text"`
}

// Ingestion holds document processing configuration.
type Ingestion struct {
	Concurrency     int           `mapstructure:"concurrency"`
	DocumentTTL     time.Duration `mapstructure:"document_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// Elasticsearch holds ES connection configuration. When enabled, every
// parsed document is mirrored into the index.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Storage holds S3/MinIO storage configuration for the diary.
type Storage struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute, // POST /api/drive extracts the whole folder
			ShutdownTimeout: 10 * time.Second,
		},
		Drive: Drive{
			ListTimeout:       10 * time.Second,
			DownloadTimeout:   30 * time.Second,
			RequestsPerSecond: 8,
		},
		Airtable: Airtable{
			BaseURL:           "https://api.airtable.com",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
			Tables: Tables{
				Protocols:  "Protocolli",
				Substances: "Sostanze",
				Symptoms:   "Sintomi",
			},
		},
		LLM: LLM{
			Enabled:     false,
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   800,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Chat: Chat{
			MaxSessions: 256,
			MaxTurns:    10,
		},
		Ingestion: Ingestion{
			Concurrency:     4,
			DocumentTTL:     24 * time.Hour,
			JanitorInterval: time.Hour,
		},
		Elasticsearch: Elasticsearch{
			Enabled:   false,
			Addresses: []string{"http://localhost:9200"},
			Index:     "protokb-documents",
		},
		Storage: Storage{
			Enabled:         false,
			Endpoint:        "localhost:9000",
			Bucket:          "protokb",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		MCP: MCP{
			Name:    "protokb",
			Version: "1.0.0",
		},
	}
}

// envAliases lists conventional variable names accepted besides the
// PROTOKB_ ones.
var envAliases = map[string][]string{
	"drive.service_account_email": {"GOOGLE_SERVICE_ACCOUNT_EMAIL"},
	"drive.private_key":           {"GOOGLE_PRIVATE_KEY"},
	"drive.folder_id":             {"GOOGLE_DRIVE_FOLDER_ID"},
	"airtable.base_id":            {"AIRTABLE_BASE_ID"},
	"airtable.api_key":            {"AIRTABLE_API_KEY"},
	"llm.api_key":                 {"LLM_API_KEY", "GEMINI_API_KEY"},
}

// boundKeys are the settings overridable from the environment.
var boundKeys = []string{
	"server.addr",
	"drive.service_account_email", "drive.private_key", "drive.folder_id",
	"drive.list_timeout", "drive.download_timeout",
	"airtable.base_url", "airtable.base_id", "airtable.api_key",
	"airtable.tables.protocols", "airtable.tables.substances", "airtable.tables.symptoms",
	"llm.enabled", "llm.provider", "llm.base_url", "llm.socket_path", "llm.api_key",
	"llm.model", "llm.max_tokens", "llm.temperature",
	"extract.pdf_text",
	"ingestion.concurrency", "ingestion.document_ttl",
	"elasticsearch.enabled", "elasticsearch.addresses", "elasticsearch.index",
	"elasticsearch.username", "elasticsearch.password",
	"storage.enabled", "storage.endpoint", "storage.bucket",
	"storage.access_key_id", "storage.secret_access_key", "storage.use_ssl",
	"mcp.name", "mcp.version",
}

// EnvName returns the PROTOKB_ variable for a setting key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads .env files, the config file and the environment into a Config
// on top of Defaults. file may be empty to search ./config, /etc/protokb and
// the working directory for config.yaml. A missing config file or .env file
// is not an error.
func Load(v *viper.Viper, file string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Defaults()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/protokb")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range boundKeys {
		names := append([]string{EnvName(key)}, envAliases[key]...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if file != "" {
				return Config{}, fmt.Errorf("read config %s: %w", file, err)
			}
			slog.Warn("config file error", "error", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
