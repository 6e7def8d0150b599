package main

import (
	"strings"

	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/allocator"
	"github.com/contractor/addrspace/manager/static"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "ADDRSPACE"

	keyLogLevel          = "log.level"
	keyLogFormat         = "log.format"
	keyStateFile         = "state.file"
	keyHTTPAddress       = "http.address"
	keyRetries           = "allocation.retries"
	keySampleAttempts    = "allocation.sample_attempts"
	keyEnumerationCutoff = "allocation.enumeration_cutoff"
	keyZones             = "zones"
	keyContainers        = "container_foundations"
	keyReadOnlyCallers   = "authorization.read_only_callers"
)

// flagKeys maps configuration keys to the flags overriding them.
var flagKeys = map[string]string{
	keyLogLevel:    "log-level",
	keyLogFormat:   "log-format",
	keyStateFile:   "state-file",
	keyHTTPAddress: "listen-address",
}

// loadConfig reads the configuration from path, if not empty, and from
// ADDRSPACE_ prefixed environment variables. Flags set on the command
// line take precedence over both.
func loadConfig(path string, flags *pflag.FlagSet) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault(keyLogLevel, "info")
	cfg.SetDefault(keyLogFormat, "text")
	cfg.SetDefault(keyHTTPAddress, "127.0.0.1:8080")
	cfg.SetDefault(keyRetries, manager.DefaultAllocationRetries)
	cfg.SetDefault(keySampleAttempts, allocator.DefaultSampleAttempts)
	cfg.SetDefault(keyEnumerationCutoff, allocator.DefaultEnumerationCutoff)

	for key, name := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := cfg.BindPFlag(key, f); err != nil {
			return nil, errors.Wrapf(err, "binding flag %s", name)
		}
	}

	if path != "" {
		cfg.SetConfigFile(path)
		cfg.SetConfigType("yaml")
		if err := cfg.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
	}
	return cfg, nil
}

// managerConfig builds the manager configuration out of cfg.
func managerConfig(cfg *viper.Viper) *manager.Config {
	return &manager.Config{
		StateFile:         cfg.GetString(keyStateFile),
		Authorizer:        static.NewAuthorizer(cfg.GetStringSlice(keyReadOnlyCallers)),
		Zones:             static.Zones(cfg.GetStringMapString(keyZones)),
		Foundations:       static.NewFoundations(cfg.GetStringSlice(keyContainers)),
		AllocationRetries: cfg.GetInt(keyRetries),
		Allocator: allocator.Config{
			SampleAttempts:    cfg.GetInt(keySampleAttempts),
			EnumerationCutoff: cfg.GetInt64(keyEnumerationCutoff),
		},
	}
}
