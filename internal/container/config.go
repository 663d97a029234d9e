// Package container provides dependency injection and lifecycle management
// for the expense portal following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	OpenAI   OpenAIConfig
	Lark     LarkConfig
	Voucher  VoucherConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxBodyBytes caps JSON request bodies; uploads use Storage.MaxUploadBytes
	MaxBodyBytes int64

	// DisableMetrics hides the /metrics endpoint; collection still runs
	DisableMetrics bool
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// StorageConfig holds proof storage settings.
type StorageConfig struct {
	// BaseDir is the root under which proofs/<user>/ files live
	BaseDir string

	// MaxUploadBytes limits a single proof; zero disables the limit
	MaxUploadBytes int64
}

// OpenAIConfig holds OCR settings. OCR is disabled when APIKey is empty.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptsPath string
	MaxPages    int
	Timeout     time.Duration
}

// Enabled reports whether OCR is configured
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// LarkConfig holds notification settings. Lark is disabled when AppID is empty.
type LarkConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// Enabled reports whether Lark notifications are configured
func (c LarkConfig) Enabled() bool {
	return c.AppID != ""
}

// VoucherConfig holds voucher numbering settings.
type VoucherConfig struct {
	// Timezone whose calendar month selects the voucher period
	Timezone string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage base dir is required")
	}
	if c.Lark.Enabled() && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark app secret is required when lark is enabled")
	}
	return nil
}

// location resolves the voucher timezone, falling back to local time
func (c VoucherConfig) location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
