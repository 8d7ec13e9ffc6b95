package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/vito/xtype/pkg/ioctx"
	"github.com/vito/xtype/pkg/universe"
)

// Config holds the flags shared by every command.
type Config struct {
	Debug    bool
	Universe string
}

func main() {
	ctx := context.Background()
	ctx = ioctx.StdoutToContext(ctx, os.Stdout)
	ctx = ioctx.StderrToContext(ctx, os.Stderr)
	if err := fang.Execute(ctx, newRootCmd(),
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &Config{}

	rootCmd := &cobra.Command{
		Use:   "xtype",
		Short: "Query a class universe's type algebra",
		Long: `xtype loads a class universe from xtype.toml (or a YAML file) and answers
assignability, resolution and flattening questions about its types.`,
		Example: `  # Is a list of dogs a list of animals?
  xtype isa 'List<Dog>' 'List<Animal>'

  # Show the flattened members of a type
  xtype info Dog

  # Check every class in a universe file
  xtype check -u shapes.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			stderr := ioctx.StderrFromContext(ctx)

			level := slog.LevelInfo
			if cfg.Debug {
				level = slog.LevelDebug
			}
			logger := slog.New(tint.NewHandler(stderr, &tint.Options{
				Level:      level,
				TimeFormat: time.Kitchen,
				NoColor:    !isTerminal(stderr),
			}))
			slog.SetDefault(logger)
			cmd.SetContext(ioctx.LoggerToContext(ctx, logger))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfg.Universe, "universe", "u", "", "Universe file (default: nearest xtype.toml)")

	rootCmd.AddCommand(
		isaCmd(cfg),
		infoCmd(cfg),
		resolveCmd(cfg),
		encodeCmd(cfg),
		decodeCmd(cfg),
		checkCmd(cfg),
	)
	return rootCmd
}

// load reads the configured universe, or finds xtype.toml above the
// working directory.
func (cfg *Config) load() (*universe.Loaded, error) {
	path := cfg.Universe
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		found, err := universe.FindConfig(cwd)
		if err != nil {
			return nil, err
		}
		if found == "" {
			return nil, fmt.Errorf("no %s found; pass --universe", universe.ConfigName)
		}
		path = found
	}
	return universe.Load(path)
}
