package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"motionsense/internal/config"
	"motionsense/internal/logging"
	"motionsense/internal/motion"
)

const defaultConfigPath = "./motionsense.yaml"

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "motionsense",
		Short:         "Significant motion detection from an accelerometer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to YAML config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(opts),
		newClassifyCmd(opts),
		newHistoryCmd(opts),
		newSyncCmd(opts),
	)
	return root
}

// load reads the config file. A missing default file yields built-in defaults
// so offline commands work without one.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.Log)
	if cfg.Debug || o.verbose {
		logging.SetDebug(true)
	}
	return cfg, nil
}

func motionConfig(cfg config.Config) motion.Config {
	return motion.Config{
		WindowSize: cfg.Motion.WindowSize,
		Threshold:  float32(cfg.Motion.Threshold),
	}
}
