package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/tsuparser"
	"github.com/jward/tsuparser/internal/logger"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		// Serve has already written fatal request errors.
		var fatal *tsuparser.FatalError
		if !errors.As(err, &fatal) {
			fmt.Fprintln(os.Stdout, err.Error())
		}
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tsuparser <project-dir>",
		Short: "Analyse TypeScript scripts for a host application",
		Long: "tsuparser reads one JSON request per line from stdin, type-checks and transpiles the named file " +
			"and writes the result as a RESPONSE_TAG line to stdout. The line EXIT stops it.",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cmd, args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd, args[0], cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "config file (default: .tsuparser.yaml in the project directory)")
	flags.String("log-level", "info", "log level: debug|info|warn|error|silent")
	flags.String("host-base-type", tsuparser.DefaultHostBaseType, "root type of the host object hierarchy")
	flags.StringSlice("immutable", nil, "glob patterns of files that never change while running")
	flags.String("rules-script", "", "Risor script run against every analysed file")
	flags.String("db", "", "SQLite file for the response cache (default: in memory)")
	return cmd
}

func run(cmd *cobra.Command, projectDir string, cfg *config) error {
	out := cmd.OutOrStdout()
	svc, err := tsuparser.New(projectDir, cfg.options(out)...)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Serve(cmd.Context(), cmd.InOrStdin(), out)
}

// options turns cfg into service options. Logs share the response stream.
func (cfg *config) options(out io.Writer) []tsuparser.Option {
	opts := []tsuparser.Option{
		tsuparser.WithLogger(logger.New(cfg.LogLevel, out)),
		tsuparser.WithHostBaseType(cfg.HostBaseType),
	}
	if len(cfg.Immutable) > 0 {
		opts = append(opts, tsuparser.WithImmutablePatterns(cfg.Immutable...))
	}
	if cfg.RulesScript != "" {
		opts = append(opts, tsuparser.WithRulesScript(cfg.RulesScript))
	}
	if cfg.DB != "" {
		opts = append(opts, tsuparser.WithDatabase(cfg.DB))
	}
	return opts
}
