package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newApplyCommand(o *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "apply <tx-file>...",
		Short: "Apply transaction files in order and report what each changed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.newSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range args {
				res, err := s.apply(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d added, %d updated, %d removed\n", p, len(res.Added), len(res.Updated), len(res.Removed))
				for _, d := range res.Diagnostics {
					fmt.Fprintf(out, "  %s\n", d.Error())
				}
			}
			if quiet {
				return nil
			}
			fmt.Fprintln(out)
			return s.print(out)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the per-transaction summaries")
	return cmd
}
