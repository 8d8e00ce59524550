// Package znconfig loads node configuration via viper: a versioned,
// mapstructure-tagged Config struct, a package-level AppConfig holding
// the active configuration, and Load/LoadFromEnv entry points that read
// a base YAML file and merge an environment-specific overlay on top.
package znconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Version is this configuration package's own semantic version.
const Version = "v0.1.0"

// Config is the unified configuration for a node: data/log directories,
// UI and fileserver bind addresses, per-site/per-file size limits, the
// minimum peers needed before a download starts, the gateway access key,
// and the swarm-wide settings (connected_limit, the tracker list).
type Config struct {
	DataDir string `mapstructure:"data_dir" json:"data_dir"`
	LogDir  string `mapstructure:"log_dir" json:"log_dir"`

	UI struct {
		BindAddress string `mapstructure:"bind_address" json:"bind_address"`
		Port        int    `mapstructure:"port" json:"port"`
	} `mapstructure:"ui" json:"ui"`

	Fileserver struct {
		BindAddress    string `mapstructure:"bind_address" json:"bind_address"`
		PortRangeStart int    `mapstructure:"port_range_start" json:"port_range_start"`
		PortRangeEnd   int    `mapstructure:"port_range_end" json:"port_range_end"`
	} `mapstructure:"fileserver" json:"fileserver"`

	Language            string   `mapstructure:"language" json:"language"`
	HomepageSiteAddress  string   `mapstructure:"homepage_site_address" json:"homepage_site_address"`
	SiteSizeLimitBytes   int64    `mapstructure:"site_size_limit_bytes" json:"site_size_limit_bytes"`
	FileSizeLimitBytes   int64    `mapstructure:"file_size_limit_bytes" json:"file_size_limit_bytes"`
	MinPeersForFetch     int      `mapstructure:"min_peers_for_fetch" json:"min_peers_for_fetch"`
	ConnectedLimit       int      `mapstructure:"connected_limit" json:"connected_limit"`
	AccessKey            string   `mapstructure:"access_key" json:"access_key"`
	Trackers             []string `mapstructure:"trackers" json:"trackers"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("log_dir", "./log")
	viper.SetDefault("ui.bind_address", "127.0.0.1")
	viper.SetDefault("ui.port", 43110)
	viper.SetDefault("fileserver.bind_address", "0.0.0.0")
	viper.SetDefault("fileserver.port_range_start", 15441)
	viper.SetDefault("fileserver.port_range_end", 15441)
	viper.SetDefault("language", "en")
	viper.SetDefault("site_size_limit_bytes", int64(10*1024*1024))
	viper.SetDefault("file_size_limit_bytes", int64(10*1024*1024))
	viper.SetDefault("min_peers_for_fetch", 1)
	viper.SetDefault("connected_limit", 8)
	viper.SetDefault("trackers", []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
	})
}

// Load reads config/default.(yaml|yml|json) plus, when env is non-empty, a
// same-directory config/<env> overlay, then unmarshals the merged result
// into AppConfig. A missing base config file is not an error (the node
// runs on its built-in defaults); a malformed one is.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("znconfig: load config: %w", err)
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("znconfig: merge %s config: %w", env, err)
			}
		}
	}

	viper.SetEnvPrefix("ZERONODE")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("znconfig: unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ZERONODE_ENV environment
// variable to select the overlay.
func LoadFromEnv() (*Config, error) {
	return Load(envOrDefault("ZERONODE_ENV", ""))
}

// envOrDefault is an os.LookupEnv-plus-fallback helper, kept local rather
// than split into a shared utils package for this one call site.
func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
