package main

import (
	"fmt"
	"os"

	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "webchat",
		Short:         "Web-augmented chat service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(serveCMD(&cfgPath), scrapeCMD(&cfgPath), searchCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime reads the config and builds the logger every command shares.
func loadRuntime(cfgPath string) (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.General.LogLevel,
		Development: cfg.General.IsDev(),
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
