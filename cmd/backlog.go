package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/darb-group/leadflow/internal/model"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Show the raw-result backlog and availability breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		stats, err := st.BacklogStats(ctx)
		if err != nil {
			return eris.Wrap(err, "backlog stats")
		}

		formatBacklog(os.Stdout, stats)
		return nil
	},
}

func formatBacklog(w io.Writer, stats *model.BacklogStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "unprocessed:\t%d\n", stats.Unprocessed)
	fmt.Fprintf(tw, "processed:\t%d\n", stats.Processed)
	fmt.Fprintf(tw, "with email upstream:\t%d\n", stats.EmailAvailable)
	fmt.Fprintf(tw, "with direct phone upstream:\t%d\n", stats.PhoneAvailable)
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(backlogCmd)
}
