package main

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"hcnn/internal/config"
	"hcnn/internal/logging"
	"hcnn/internal/pipeline"
)

type commandContext struct {
	configFlags *[]string
	logLevel    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlags *[]string, logLevel *string) *commandContext {
	return &commandContext{
		configFlags: configFlags,
		logLevel:    logLevel,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var paths []string
		if c.configFlags != nil {
			paths = *c.configFlags
		}
		cfg, err := config.Load(paths...)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevelValue() string {
	if c.logLevel == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevel)
}

// driver builds a pipeline driver for one command invocation. Progress bars
// are drawn only when stderr is a terminal.
func (c *commandContext) driver(cmd *cobra.Command) (*pipeline.Driver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, c.logLevelValue())
	if err != nil {
		return nil, err
	}
	var opts []pipeline.Option
	if isTerminal(cmd.ErrOrStderr()) {
		opts = append(opts, pipeline.WithProgress(newBarProgress(cmd.ErrOrStderr())))
	}
	return pipeline.New(cfg, logger, opts...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
