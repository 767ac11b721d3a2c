package config

import (
	"time"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// DefaultRemoteURL is the published export of the restricted materials list.
const DefaultRemoteURL = "https://www.minjust.gov.ru/uploaded/files/exportfsm.csv"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/fsmcheck/data/db/fsm.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/fsmcheck/data/indices"
	}
	if cfg.Storage.SettingsPath == "" {
		cfg.Storage.SettingsPath = "/usr/local/var/fsmcheck/settings.yaml"
	}
	if cfg.Source.RemoteURL == "" {
		cfg.Source.RemoteURL = DefaultRemoteURL
	}
	if cfg.Source.DefaultKind == "" {
		cfg.Source.DefaultKind = string(models.SourceInlineText)
	}
	if cfg.Source.DefaultLocation == "" {
		switch models.SourceKind(cfg.Source.DefaultKind) {
		case models.SourceRemoteDelimited:
			cfg.Source.DefaultLocation = cfg.Source.RemoteURL
		case models.SourceLocalDelimited:
			cfg.Source.DefaultLocation = "./fs_em.csv"
		default:
			cfg.Source.DefaultLocation = "./fs_em.txt"
		}
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 5 * time.Second
	}
	if cfg.Source.MaxBytes == 0 {
		cfg.Source.MaxBytes = 64 << 20
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
