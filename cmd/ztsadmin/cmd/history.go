package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Device drift records",
}

var driftHistoryCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show a user's newest drift records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		records, err := a.Auth.DriftHistory(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		w := newTable(cmd)
		fmt.Fprintln(w, "TIME\tDEVICE\tSIMILARITY\tSTATUS\tACTION\tCHANGED")
		for _, r := range records {
			var changed []string
			for _, d := range r.Result.Details {
				if !d.Matched {
					changed = append(changed, d.Component)
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.DeviceID,
				r.Result.Similarity, r.Result.Status, r.Result.Action, strings.Join(changed, ","))
		}
		return w.Flush()
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log tools",
}

var auditListCmd = &cobra.Command{
	Use:   "list <subject-user-id>",
	Short: "Show the newest audit entries about a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		logs, err := a.AuditRepo.ListBySubject(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		w := newTable(cmd)
		fmt.Fprintln(w, "TIME\tACTOR\tACTION\tRESOURCE\tIP\tMETADATA")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", l.CreatedAt.Format(time.RFC3339), l.ActorID, l.Action, l.Resource, l.IP, l.Metadata)
		}
		return w.Flush()
	},
}

func init() {
	driftHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show")
	auditListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	driftCmd.AddCommand(driftHistoryCmd)
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(driftCmd, auditCmd)
}
