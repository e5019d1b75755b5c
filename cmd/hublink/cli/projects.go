package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/api"
	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/ui"
)

var projectsForce bool

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project"},
	Short:   "Manage developer projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects in the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		projects, err := api.FetchProjects(cmd.Context(), client, acct)
		if err != nil {
			return err
		}
		if jsonOut {
			return intcli.PrintJSON(cmd.OutOrStdout(), projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
			fmt.Fprintln(cmd.OutOrStdout(), "\nCreate one with: hublink projects create <name>")
			return nil
		}
		w := intcli.NewTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "NAME\tID\tUPDATED\tBUILD")
		for _, p := range projects {
			build := "-"
			if p.DeployedBuildID != 0 {
				build = fmt.Sprintf("#%d", p.DeployedBuildID)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.Name, p.ID, projectTime(p.UpdatedAt), build)
		}
		return w.Flush()
	},
}

var projectsInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		p, err := api.FetchProject(cmd.Context(), client, acct, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return intcli.PrintJSON(cmd.OutOrStdout(), p)
		}
		w := intcli.NewTable(cmd.OutOrStdout())
		fmt.Fprintf(w, "Name:\t%s\n", p.Name)
		fmt.Fprintf(w, "ID:\t%d\n", p.ID)
		fmt.Fprintf(w, "Account:\t%d\n", p.PortalID)
		fmt.Fprintf(w, "Created:\t%s\n", projectTime(p.CreatedAt))
		fmt.Fprintf(w, "Updated:\t%s\n", projectTime(p.UpdatedAt))
		if p.DeployedBuildID != 0 {
			fmt.Fprintf(w, "Deployed build:\t#%d\n", p.DeployedBuildID)
		}
		return w.Flush()
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		p, err := api.CreateProject(cmd.Context(), client, acct, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return intcli.PrintJSON(cmd.OutOrStdout(), p)
		}
		ui.Successf("Created project %s (%d)", p.Name, p.ID)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:         "delete <name>",
	Short:       "Delete a project",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		if !projectsForce {
			ok, err := newPrompter().Confirm(fmt.Sprintf("Delete project %s from account %d?", args[0], acct))
			if err != nil || !ok {
				return err
			}
		}
		if err := api.DeleteProject(cmd.Context(), client, acct, args[0]); err != nil {
			return err
		}
		ui.Successf("Deleted project %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsInfoCmd, projectsCreateCmd, projectsDeleteCmd)
	projectsDeleteCmd.Flags().BoolVarP(&projectsForce, "force", "f", false, "do not ask for confirmation")
}

// projectTime formats a millisecond timestamp from the projects API.
func projectTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return intcli.FormatTimeAgo(time.UnixMilli(ms))
}
