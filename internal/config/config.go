// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package config is a singleton and provides global access to the
// configuration values.
package config

import (
	"flag"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// Default config path. It does not need to exist, default values for all parameters will be
	// used instead.
	defaultConfig = "/etc/raid5/config.toml"
)

var Cfg Config

// Configuration structure for the program. We use toml format for file-based
// configuration and also all configuration options can be overriden by
// environment variable specified in this structure.
type Config struct {
	ConfigPath string

	Devices int    `toml:"devices" env:"RAID5_DEVICES" env-default:"4" env-description:"Number of drives in the array (3-16)."`
	Sectors int    `toml:"sectors" env:"RAID5_SECTORS" env-default:"2048" env-description:"Sectors per drive, including the header sector."`
	Backend string `toml:"backend" env:"RAID5_BACKEND" env-default:"file" env-description:"Drive backend: file, mem or s3."`
	Format  bool   `toml:"format" env:"RAID5_FORMAT" env-default:"false" env-description:"Provision fresh drive headers before starting."`
	Resync  bool   `toml:"resync" env:"RAID5_RESYNC" env-default:"false" env-description:"Run a resync when the array starts degraded."`

	File struct {
		Dir string `toml:"dir" env:"RAID5_FILE_DIR" env-description:"Directory holding the per-drive backing files." env-default:"/var/lib/raid5"`
	} `toml:"file"`

	S3 struct {
		Bucket    string `toml:"bucket" env:"RAID5_S3_BUCKET" env-description:"S3 Bucket name." env-default:"raid5"`
		Remote    string `toml:"remote" env:"RAID5_S3_REMOTE" env-description:"S3 Remote address. Empty string for AWS S3 endpoint." env-default:""`
		Region    string `toml:"region" env:"RAID5_S3_REGION" env-description:"S3 Region." env-default:"us-east-1"`
		AccessKey string `toml:"access_key" env:"RAID5_S3_ACCESSKEY" env-description:"S3 Access Key." env-default:""`
		SecretKey string `toml:"secret_key" env:"RAID5_S3_SECRETKEY" env-description:"S3 Secret Key." env-default:""`
	} `toml:"s3"`

	Log struct {
		Level  int  `toml:"level" env:"RAID5_LOG_LEVEL" env-description:"Log level." env-default:"-1"`
		Pretty bool `toml:"pretty" env:"RAID5_LOG_PRETTY" env-description:"Pretty logging." env-default:"true"`
	} `toml:"log"`

	Metrics     bool `toml:"metrics" env:"RAID5_METRICS" env-default:"false" env-description:"Expose prometheus metrics."`
	MetricsPort int  `toml:"metrics_port" env:"RAID5_METRICS_PORT" env-default:"9105" env-description:"Port for the metrics endpoint."`

	Profiler     bool `toml:"profiler" env:"RAID5_PROFILER" env-description:"Enable golang web profiler." env-default:"false"`
	ProfilerPort int  `toml:"profiler_port" env:"RAID5_PROFILER_PORT" env-default:"6060" env-description:"Port to listen on."`
}

// Configure reads commandline flags and handles the configuration. The
// configuration file has the lower priotiry and the environment variables have
// the highest priority. It is perfetcly to fine to use just one of these or to
// combine them.
func Configure() error {
	flagSetup()
	err := parse()

	return err
}

// Parse the configuration file and reads the environment variable. After that
// it fills the Cfg structure.
func parse() error {
	if err := cleanenv.ReadConfig(Cfg.ConfigPath, &Cfg); err != nil {
		if err := cleanenv.ReadEnv(&Cfg); err != nil {
			return err
		}
	}

	return nil
}

// Handle program flags.
func flagSetup() {
	f := flag.NewFlagSet("raid5", flag.ExitOnError)
	f.StringVar(&Cfg.ConfigPath, "c", defaultConfig, "Path to configuration file")
	f.Usage = cleanenv.FUsage(f.Output(), &Cfg, nil, f.Usage)
	f.Parse(os.Args[1:])
}
