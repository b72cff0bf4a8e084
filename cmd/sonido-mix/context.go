package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mix/config"
	"github.com/RyanBlaney/sonido-mix/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// configureLogging installs the global logger. A non-empty override takes
// precedence over the configured level.
func configureLogging(cfg *config.Config, override string) error {
	level := cfg.LogLevel()
	if strings.TrimSpace(override) != "" {
		parsed, err := logging.ParseLevel(override)
		if err != nil {
			return err
		}
		level = parsed
	}

	logger := logging.NewDefaultLoggerNoColor()
	switch cfg.Logging.Colors {
	case "always":
		logger.SetColors(true)
	case "auto":
		fd := os.Stdout.Fd()
		logger.SetColors(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	}
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
