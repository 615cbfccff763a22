package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RadarrServer describes a single Radarr instance requests can be sent to
type RadarrServer struct {
	ID                  int    `mapstructure:"id"`
	Name                string `mapstructure:"name"`
	URL                 string `mapstructure:"url"`
	APIKey              string `mapstructure:"api_key"`
	Is4K                bool   `mapstructure:"is_4k"`
	IsDefault           bool   `mapstructure:"is_default"`
	ActiveProfileID     int    `mapstructure:"profile_id"`
	ActiveDirectory     string `mapstructure:"root_folder"`
	Tags                []int  `mapstructure:"tags"`
	TagRequests         bool   `mapstructure:"tag_requests"`
	MinimumAvailability string `mapstructure:"minimum_availability"`
}

// SonarrServer describes a single Sonarr instance requests can be sent to
type SonarrServer struct {
	ID                           int    `mapstructure:"id"`
	Name                         string `mapstructure:"name"`
	URL                          string `mapstructure:"url"`
	APIKey                       string `mapstructure:"api_key"`
	Is4K                         bool   `mapstructure:"is_4k"`
	IsDefault                    bool   `mapstructure:"is_default"`
	ActiveProfileID              int    `mapstructure:"profile_id"`
	ActiveDirectory              string `mapstructure:"root_folder"`
	ActiveLanguageProfileID      int    `mapstructure:"language_profile_id"`
	ActiveAnimeProfileID         int    `mapstructure:"anime_profile_id"`
	ActiveAnimeDirectory         string `mapstructure:"anime_root_folder"`
	ActiveAnimeLanguageProfileID int    `mapstructure:"anime_language_profile_id"`
	Tags                         []int  `mapstructure:"tags"`
	AnimeTags                    []int  `mapstructure:"anime_tags"`
	TagRequests                  bool   `mapstructure:"tag_requests"`
	EnableSeasonFolders          bool   `mapstructure:"season_folders"`
}

// PlexUser describes a watchlist-synced user
type PlexUser struct {
	Name        string `mapstructure:"name"`
	Token       string `mapstructure:"token"`
	AutoApprove bool   `mapstructure:"auto_approve"`
	Sync4K      bool   `mapstructure:"sync_4k"`
}

// Config holds all application configuration
type Config struct {
	// Metadata provider
	TMDBAPIKey string

	// Acquisition services
	Radarr []RadarrServer
	Sonarr []SonarrServer

	// Watchlist users
	PlexUsers []PlexUser

	// Sweeps
	WatchlistSyncMinutes int // How often to poll watchlists (default: 10)
	DispatchSweepMinutes int // How often to re-dispatch unconfirmed approvals (default: 10)
	DispatchGraceMinutes int // Age before an unconfirmed approval is re-dispatched (default: 5)

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/requestarr.db

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load loads configuration from environment variables and the config file
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("WATCHLIST_SYNC_MINUTES", 10)
	viper.SetDefault("DISPATCH_SWEEP_MINUTES", 10)
	viper.SetDefault("DISPATCH_GRACE_MINUTES", 5)
	viper.SetDefault("SERVER_PORT", "5056")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_JSON", false)

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "requestarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Server lists and users live in config.yaml; scalars may be overridden by env
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		TMDBAPIKey: viper.GetString("TMDB_API_KEY"),

		WatchlistSyncMinutes: viper.GetInt("WATCHLIST_SYNC_MINUTES"),
		DispatchSweepMinutes: viper.GetInt("DISPATCH_SWEEP_MINUTES"),
		DispatchGraceMinutes: viper.GetInt("DISPATCH_GRACE_MINUTES"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "requestarr.db"),

		LogLevel: viper.GetString("LOG_LEVEL"),
		LogJSON:  viper.GetBool("LOG_JSON"),
	}

	if err := viper.UnmarshalKey("radarr", &config.Radarr); err != nil {
		return nil, fmt.Errorf("failed to parse radarr servers: %w", err)
	}
	if err := viper.UnmarshalKey("sonarr", &config.Sonarr); err != nil {
		return nil, fmt.Errorf("failed to parse sonarr servers: %w", err)
	}
	if err := viper.UnmarshalKey("plex_users", &config.PlexUsers); err != nil {
		return nil, fmt.Errorf("failed to parse plex users: %w", err)
	}

	// Validate required fields
	if config.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB_API_KEY is required")
	}
	for _, server := range config.Radarr {
		if server.URL == "" || server.APIKey == "" {
			return nil, fmt.Errorf("radarr server %q is missing url or api_key", server.Name)
		}
	}
	for _, server := range config.Sonarr {
		if server.URL == "" || server.APIKey == "" {
			return nil, fmt.Errorf("sonarr server %q is missing url or api_key", server.Name)
		}
	}

	return config, nil
}

// DefaultRadarr returns the default Radarr server for a tier, or nil
func (c *Config) DefaultRadarr(is4k bool) *RadarrServer {
	for i := range c.Radarr {
		if c.Radarr[i].IsDefault && c.Radarr[i].Is4K == is4k {
			return &c.Radarr[i]
		}
	}
	return nil
}

// RadarrByID returns the Radarr server with the given id, or nil
func (c *Config) RadarrByID(id int) *RadarrServer {
	for i := range c.Radarr {
		if c.Radarr[i].ID == id {
			return &c.Radarr[i]
		}
	}
	return nil
}

// DefaultSonarr returns the default Sonarr server for a tier, or nil
func (c *Config) DefaultSonarr(is4k bool) *SonarrServer {
	for i := range c.Sonarr {
		if c.Sonarr[i].IsDefault && c.Sonarr[i].Is4K == is4k {
			return &c.Sonarr[i]
		}
	}
	return nil
}

// SonarrByID returns the Sonarr server with the given id, or nil
func (c *Config) SonarrByID(id int) *SonarrServer {
	for i := range c.Sonarr {
		if c.Sonarr[i].ID == id {
			return &c.Sonarr[i]
		}
	}
	return nil
}
