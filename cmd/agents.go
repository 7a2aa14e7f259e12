package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured voice agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tDEFAULT")
		for _, agent := range cfg.Voice.Agents {
			def := ""
			if agent.ID == cfg.Voice.DefaultAgent {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", agent.Name, agent.ID, def)
		}
		return w.Flush()
	},
}
