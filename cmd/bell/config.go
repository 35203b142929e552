package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sipbell/bell/pkg/config"
)

// getConfig loads the optional yaml config and applies flags and environment on top of it.
func getConfig(c *cli.Command, verbosity int) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" && configFile != "" {
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	conf, err := config.NewConfig(configBody)
	if err != nil {
		return nil, err
	}
	applyFlags(c, conf)
	applyVerbosity(conf, verbosity)

	if err = conf.Init(); err != nil {
		return nil, err
	}
	return conf, nil
}

func applyFlags(c *cli.Command, conf *config.Config) {
	for name, dst := range map[string]*string{
		"source":   &conf.Source,
		"server":   &conf.Server,
		"target":   &conf.Target,
		"username": &conf.Username,
		"password": &conf.Password,
		"serial":   &conf.Serial,
	} {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("port") {
		conf.Port = int(c.Int("port"))
	}
	if c.IsSet("duration") {
		conf.RingDurationMs = int(c.Int("duration"))
	}
}

// applyVerbosity maps the -v count to a log level. The config file level is kept without -v.
func applyVerbosity(conf *config.Config, verbosity int) {
	if verbosity == 0 && conf.Logging.Level != "" {
		return
	}
	switch verbosity {
	case 0:
		conf.Logging.Level = "warn"
	case 1:
		conf.Logging.Level = "info"
	default:
		conf.Logging.Level = "debug"
	}
}
