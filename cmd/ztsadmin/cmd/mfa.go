package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mfaCmd = &cobra.Command{
	Use:   "mfa",
	Short: "MFA enrollment tools",
}

var mfaAdminID string

var mfaDisableCmd = &cobra.Command{
	Use:   "disable <user-id>",
	Short: "Disable MFA for a user (e.g. lost authenticator)",
	Long:  `Disables the user's MFA credential on behalf of --admin, who must be listed in ADMIN_USER_IDS. The action is audited.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Auth.DisableMFA(cmd.Context(), mfaAdminID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "MFA disabled for %s by %s\n", args[0], mfaAdminID)
		return nil
	},
}

var mfaStatusCmd = &cobra.Command{
	Use:   "status <user-id>",
	Short: "Show a user's MFA enrollment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		st, err := a.Auth.MFAStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "enabled:      %v\npending:      %v\nbackup codes: %d\n", st.Enabled, st.Pending, st.RemainingBackupCodes)
		if st.DisabledAt != nil {
			fmt.Fprintf(out, "last disable: %s at %s\n", st.DisabledBy, st.DisabledAt.Format("2006-01-02 15:04:05Z07:00"))
		}
		return nil
	},
}

func init() {
	mfaDisableCmd.Flags().StringVar(&mfaAdminID, "admin", "", "acting administrator user id")
	_ = mfaDisableCmd.MarkFlagRequired("admin")
	mfaCmd.AddCommand(mfaDisableCmd, mfaStatusCmd)
	rootCmd.AddCommand(mfaCmd)
}
