package config

// Package config provides a reusable loader for meshchain configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"meshchain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a meshchain node. Load
// reads it from a YAML file named default under cmd/config or config; the
// repository ships no such file.
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		NetworkEpoch   uint64   `mapstructure:"network_epoch" json:"network_epoch"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		ListenAddrs    []string `mapstructure:"listen_addrs" json:"listen_addrs"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		DevMode        bool     `mapstructure:"dev_mode" json:"dev_mode"`
		HandshakeSkewMS int     `mapstructure:"handshake_skew_ms" json:"handshake_skew_ms"`
	} `mapstructure:"network" json:"network"`

	DHT struct {
		BucketSize        int `mapstructure:"bucket_size" json:"bucket_size"`
		ReplicationFactor int `mapstructure:"replication_factor" json:"replication_factor"`
		PoWBits           int `mapstructure:"pow_bits" json:"pow_bits"`
	} `mapstructure:"dht" json:"dht"`

	Consensus struct {
		SecurityLevel   string  `mapstructure:"security_level" json:"security_level"` // "lvl2" or "lvl5"
		StakeCoeff      float64 `mapstructure:"stake_coeff" json:"stake_coeff"`
		StorageCoeff    float64 `mapstructure:"storage_coeff" json:"storage_coeff"`
		UsefulWorkCoeff float64 `mapstructure:"useful_work_coeff" json:"useful_work_coeff"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		DataDirectory string `mapstructure:"data_directory" json:"data_directory"`
		DefaultTier   string `mapstructure:"default_tier" json:"default_tier"`
	} `mapstructure:"storage" json:"storage"`

	ZK struct {
		SetupCacheDir string `mapstructure:"setup_cache_dir" json:"setup_cache_dir"`
	} `mapstructure:"zk" json:"zk"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MESHCHAIN_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MESHCHAIN_ENV", ""))
}
