// Package cli implements the batchtower command-line interface.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/batchtower/pkg/buildinfo"
	"github.com/matzehuels/batchtower/pkg/config"
)

const (
	// appName is the application name used for directories and display.
	appName = "batchtower"

	// historyRetention is how long archived runs are kept.
	historyRetention = 30 * 24 * time.Hour
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	level  log.Level
	stderr io.Writer
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), level: level, stderr: w}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.level = level
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	versionTemplate := buildinfo.Template()
	root := &cobra.Command{
		Use:   appName,
		Short: "Batchtower runs DAGs of batch jobs on a single host",
		Long: `Batchtower executes a dependency graph of scripts on one machine. Each node
starts once all of its prerequisites finished successfully; launches are held
back while the host is short on CPU, memory or disk; any failure, timeout or
missed deadline stops the whole run and kills what is still running.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(versionTemplate)

	root.AddCommand(c.runCommand())
	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.lockCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), appName)
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

// configFlag registers the shared --config flag.
func configFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.DefaultFile, "configuration file (.json, .toml, .yaml or .hcl)")
}

func (c *CLI) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("loaded configuration", "path", cfg.Path, "nodes", len(cfg.Nodes))
	return cfg, nil
}
