package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/batchtower/pkg/batch"
	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/history"
)

func (c *CLI) historyCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show an archived run",
		Long:  `History prints the timings of the most recent run, or of the run with the given ID.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := history.NewFileStore(filepath.Join(batch.LogDir(cfg), history.DefaultDir), historyRetention)
			if err != nil {
				return err
			}
			defer store.Close()

			var (
				e  history.Entry
				ok bool
			)
			if len(args) == 1 {
				e, ok, err = store.Get(cmd.Context(), args[0])
			} else {
				e, ok, err = store.Latest(cmd.Context())
			}
			if err != nil {
				return err
			}
			if !ok {
				return bterrors.New(bterrors.ErrCodeInvalidInput, "no archived run found")
			}

			printRun(e)
			if e.ConfigHash != "" {
				printDetail("config sha256 %s", e.ConfigHash[:12])
			}
			return nil
		},
	}

	configFlag(cmd, &configPath)
	return cmd
}
