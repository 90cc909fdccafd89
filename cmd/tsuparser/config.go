package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/tsuparser/internal/logger"
)

// config is the resolved command configuration from flags, environment
// (TSUPARSER_*) and an optional .tsuparser.yaml.
type config struct {
	LogLevel     logger.Level
	HostBaseType string
	Immutable    []string
	RulesScript  string
	DB           string
}

func initConfig(v *viper.Viper, cmd *cobra.Command, projectDir string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix("TSUPARSER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".tsuparser")
		v.SetConfigType("yaml")
		v.AddConfigPath(projectDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config, error) {
	level, err := logger.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return &config{
		LogLevel:     level,
		HostBaseType: v.GetString("host-base-type"),
		Immutable:    v.GetStringSlice("immutable"),
		RulesScript:  v.GetString("rules-script"),
		DB:           v.GetString("db"),
	}, nil
}
