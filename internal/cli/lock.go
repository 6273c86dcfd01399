package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/batchtower/pkg/lock"
)

func (c *CLI) lockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear the single-instance lock",
	}
	cmd.AddCommand(c.lockStatusCommand())
	cmd.AddCommand(c.lockClearCommand())
	return cmd
}

// lockPath resolves the lock file from an explicit path or the configuration.
func (c *CLI) lockPath(path, configPath string) (string, error) {
	if path != "" {
		return path, nil
	}
	cfg, err := c.loadConfig(configPath)
	if err != nil {
		return "", err
	}
	return cfg.LockFile, nil
}

func (c *CLI) lockStatusCommand() *cobra.Command {
	var configPath, path string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who holds the lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.lockPath(path, configPath)
			if err != nil {
				return err
			}
			h, err := lock.Inspect(cmd.Context(), p, lock.WithLogger(c.Logger))
			if err != nil {
				return err
			}

			printKeyValue("lock", h.Path)
			switch {
			case !h.Exists:
				printSuccess("not held")
			case h.Alive:
				printWarning("held by running process %d", h.PID)
			case h.Stale && h.PID > 0:
				printInfo("stale: process %d is gone; the next run reclaims it", h.PID)
			default:
				printInfo("stale: unreadable record %s; the next run reclaims it", strconv.Quote(h.Raw))
			}
			return nil
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringVar(&path, "path", "", "lock file (overrides the configuration)")
	return cmd
}

func (c *CLI) lockClearCommand() *cobra.Command {
	var configPath, path string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a stale lock",
		Long:  `Clear removes the lock record when its process is gone. A lock held by a running process is never removed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.lockPath(path, configPath)
			if err != nil {
				return err
			}
			removed, err := lock.Clear(cmd.Context(), p, lock.WithLogger(c.Logger))
			if err != nil {
				return err
			}
			if removed {
				printSuccess("removed stale lock %s", p)
			} else {
				printInfo("no lock at %s", p)
			}
			return nil
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringVar(&path, "path", "", "lock file (overrides the configuration)")
	return cmd
}
