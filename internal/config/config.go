// Package config wraps viper-based configuration for mtd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tasksync/mtd/internal/router"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config search paths, in order of precedence:
	// 1. Walk up from CWD to find a project .mtd/ directory, so commands
	//    work from vault subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			mtdDir := filepath.Join(dir, ".mtd")
			if info, err := os.Stat(mtdDir); err == nil && info.IsDir() {
				v.AddConfigPath(mtdDir)
				break
			}
		}
		v.AddConfigPath(filepath.Join(cwd, ".mtd"))
	}

	// 2. User config directory (~/.config/mtd/).
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "mtd"))
	}

	// 3. Home directory (~/.mtd/).
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".mtd"))
	}

	// Environment variables take precedence over the config file,
	// e.g. MTD_VAULT, MTD_DELETION_BEHAVIOR, MTD_SYNC_INTERVAL.
	v.SetEnvPrefix("MTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("vault", ".")
	v.SetDefault("state-file", "")
	v.SetDefault("deletion-behavior", "complete")
	v.SetDefault("push-debounce", "2s")
	v.SetDefault("sync-interval", "5m")
	v.SetDefault("fetch-limit", 200)
	v.SetDefault("pull-tag", "")
	v.SetDefault("pull-tag-with-list-name", false)
	v.SetDefault("api-base", "https://graph.microsoft.com/v1.0")
	v.SetDefault("auth.client-id", "")
	v.SetDefault("auth.tenant", "consumers")
	v.SetDefault("log-file", "")
	v.SetDefault("json", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found - defaults apply.
	}

	return nil
}

// Settings is the typed view of the configuration consumed by the engine
// and the CLI.
type Settings struct {
	VaultPath           string
	StatePath           string
	DeletionBehavior    string // "complete" or "delete"
	PushDebounce        time.Duration
	SyncInterval        time.Duration
	FetchLimit          int
	PullTag             string
	PullTagWithListName bool
	APIBase             string
	ClientID            string
	Tenant              string
	LogFile             string
	Routes              []router.Rule
}

// Load materializes Settings from the initialized viper instance.
func Load() (*Settings, error) {
	if v == nil {
		return nil, fmt.Errorf("config not initialized")
	}

	s := &Settings{
		VaultPath:           v.GetString("vault"),
		StatePath:           v.GetString("state-file"),
		DeletionBehavior:    v.GetString("deletion-behavior"),
		PushDebounce:        v.GetDuration("push-debounce"),
		SyncInterval:        v.GetDuration("sync-interval"),
		FetchLimit:          v.GetInt("fetch-limit"),
		PullTag:             v.GetString("pull-tag"),
		PullTagWithListName: v.GetBool("pull-tag-with-list-name"),
		APIBase:             v.GetString("api-base"),
		ClientID:            v.GetString("auth.client-id"),
		Tenant:              v.GetString("auth.tenant"),
		LogFile:             v.GetString("log-file"),
	}

	if err := v.UnmarshalKey("routes", &s.Routes); err != nil {
		return nil, fmt.Errorf("invalid routes configuration: %w", err)
	}

	switch s.DeletionBehavior {
	case "complete", "delete":
	default:
		return nil, fmt.Errorf("deletion-behavior must be \"complete\" or \"delete\", got %q", s.DeletionBehavior)
	}

	if s.StatePath == "" {
		s.StatePath = filepath.Join(s.VaultPath, ".mtd", "state.json")
	}
	if s.LogFile == "" {
		s.LogFile = filepath.Join(s.VaultPath, ".mtd", "watch.log")
	}

	return s, nil
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// Set sets a configuration value, used by tests and flag overrides.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}
