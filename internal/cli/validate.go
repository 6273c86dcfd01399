package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/executor"
)

func (c *CLI) validateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without running anything",
		Long: `Validate loads the configuration, builds the task graph and checks it for
cycles and missing task files. A migration section is checked for its two task
files. Nothing is launched and the lock is not taken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prog := newProgress(c.Logger)
			cfg, err := c.loadConfig(configPath)
			if err != nil {
				return err
			}
			printKeyValue("config", cfg.Path)
			var tasks []string
			if len(cfg.Nodes) > 0 {
				g, err := cfg.Graph()
				if err != nil {
					return err
				}
				printKeyValue("graph", fmt.Sprintf("%d nodes, %d edges", g.Len(), g.EdgeCount()))
				printKeyValue("roots", strings.Join(g.InitialReady(), ", "))
				if cycle := g.FindCycle(); cycle != nil {
					return bterrors.New(bterrors.ErrCodeCycleOrIncomplete,
						"dependency cycle: %s", strings.Join(cycle, " -> "))
				}
				tasks = g.IDs()
			}
			if d, ok := cfg.Deadline(); ok {
				printKeyValue("deadline", d.String())
			}
			if !cfg.Resources.Empty() {
				printKeyValue("resources", describeThresholds(cfg))
			}
			if m := cfg.Migration; m != nil {
				printKeyValue("migration", describeMigration(m))
				tasks = append(tasks, m.GetIDs, m.ProcessChunk)
			}

			proc := executor.NewProcess(cfg.ProcessDir, cfg.Interpreter, c.Logger)
			missing := 0
			for _, id := range tasks {
				if err := proc.Check(id); err != nil {
					printWarning("%s: %s", id, bterrors.UserMessage(err))
					missing++
				}
			}
			if missing > 0 {
				printWarning("%d task file(s) not found under %s", missing, cfg.ProcessDir)
			}

			prog.done("configuration checked")
			printSuccess("configuration is valid")
			return nil
		},
	}

	configFlag(cmd, &configPath)
	return cmd
}
