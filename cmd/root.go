package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/basedgoydev/greed-farm/config"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

const programName = "greed-farm"

type configKey struct{}

var globalFlags = struct {
	configFile string
	debug      bool
}{}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Staking yield farm with a provably-fair greed pot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if globalFlags.debug {
				cfg.LogLevel = "debug"
			}
			if err := configureLogging(cfg); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to YAML config file")
	root.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	root.AddCommand(serveCommand())
	root.AddCommand(migrateCommand())
	root.AddCommand(tickCommand())
	root.AddCommand(verifyCommand())
	root.AddCommand(cleanupCommand())

	return root
}

// Execute runs the command named by the process arguments
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	if globalFlags.configFile == "" {
		return config.Get(), nil
	}
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("no config found in context")
	}
	return cfg, nil
}

func configureLogging(cfg *config.Config) error {
	level := log.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		level = parsed
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
