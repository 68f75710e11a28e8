package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// tasks lists the current process's task records. State is in-memory only,
// so this reports tasks created by this invocation, not a running server.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List task records held by this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTAGE\tROUND\tQUERY")
		for _, t := range env.store.List() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Stage, t.Round, t.InitialQuery)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
