package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zero-trust-session-core/internal/audit"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and revoke sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's live sessions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		list, err := a.Sessions.ListUserSessions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := newTable(cmd)
		fmt.Fprintln(w, "SESSION\tDEVICE\tIP\tMFA\tCREATED\tLAST ACTIVITY\tEXPIRES")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\t%s\n", s.ID, s.DeviceID, s.IPAddress, s.MFAVerified,
				s.CreatedAt.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var revokeAllFor string

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke [session-id]",
	Short: "Terminate one session, or every session of --all-for",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 1) == (revokeAllFor != "") {
			return errors.New("give either a session id or --all-for <user-id>")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()
		if revokeAllFor != "" {
			n, err := a.Sessions.TerminateAllUserSessions(cmd.Context(), revokeAllFor)
			if err != nil {
				return err
			}
			a.Audit.LogEvent(cmd.Context(), "ztsadmin", revokeAllFor, audit.ActionSessionsTerminatedAll, "session", map[string]int64{"terminated": n})
			fmt.Fprintf(out, "terminated %d session(s) of %s\n", n, revokeAllFor)
			return nil
		}
		s, err := a.Sessions.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ok, err := a.Sessions.TerminateSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s not found", args[0])
		}
		if s != nil {
			a.Audit.LogEvent(cmd.Context(), "ztsadmin", s.UserID, audit.ActionSessionTerminated, "session", map[string]string{"session_id": s.ID})
		}
		fmt.Fprintf(out, "terminated session %s\n", args[0])
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.Sessions.CleanupExpiredSessions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired session(s)\n", n)
		return nil
	},
}

func init() {
	sessionsRevokeCmd.Flags().StringVar(&revokeAllFor, "all-for", "", "terminate every session of this user id")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsRevokeCmd, sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}
