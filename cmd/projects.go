package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the project codes offered to the extractor",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <uppdragsnr> <kund>",
	Short: "Add or rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.Open(cfg.Database.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.UpsertProject(cmd.Context(), sqlite.Project{Uppdragsnr: args[0], Kund: args[1]}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved project %s (%s)\n", args[0], args[1])
		return nil
	},
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.Open(cfg.Database.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()

		projects, err := store.ListProjects(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UPPDRAGSNR\tKUND")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\n", p.Uppdragsnr, p.Kund)
		}
		return w.Flush()
	},
}

func init() {
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsListCmd)
}
