package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/bpsreport/report-server/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultUploadsDir    = "uploads"
	defaultMaxUploadSize = 5 * 1024 * 1024
	defaultSweepSpec     = "@hourly"
)

// Config is the global configuration object which is filled via the
// configuration file, environment (REPORT_*) and command-line flags.
type Config struct {
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	UploadsConfig     UploadsConfig     `mapstructure:"uploads"`
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	CORSOrigin        string            `mapstructure:"cors_origin"`
	LogLevel          string            `mapstructure:"log_level"`
}

// BuntDBConfig configures the BuntDB file storage backed database.
type BuntDBConfig struct {
	Name string `mapstructure:"name"`
}

// PersistenceConfig configures the persistence backends. Type is one of
// "buntdb", "sqlite" or "postgres"; DSN applies to the latter two.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`

	BuntDBConfig BuntDBConfig `mapstructure:"buntdb"`
}

// UploadsConfig configures where uploaded report images are stored, the
// maximum accepted file size and the cron spec of the orphan sweep.
type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxSize   int64  `mapstructure:"max_size"`
	SweepSpec string `mapstructure:"sweep_spec"`
}

// HistoryConfig caps the number of responses replayed on join-report.
// 0 means the full conversation is replayed.
type HistoryConfig struct {
	ReplayLimit int `mapstructure:"replay_limit"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("uploads-dir", "", "directory for uploaded images")
	flagSet.String("cors-origin", "", "allowed CORS origin")
	flagSet.String("log-level", "", "log level (trace, debug, info, warn, error)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.Replace(name, "-", "_", -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("uploads.dir", defaultUploadsDir)
	viper.SetDefault("uploads.max_size", defaultMaxUploadSize)
	viper.SetDefault("uploads.sweep_spec", defaultSweepSpec)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("REPORT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg, "all", viper.AllSettings())
	return &cfg, nil
}
