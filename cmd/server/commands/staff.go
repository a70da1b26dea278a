package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"discuss/internal/db"
	"discuss/internal/store"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <nickname>",
	Short: "Give a user access to the admin views",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStaff(cmd, args[0], true)
	},
}

var demoteCmd = &cobra.Command{
	Use:   "demote <nickname>",
	Short: "Revoke a user's access to the admin views",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStaff(cmd, args[0], false)
	},
}

func setStaff(cmd *cobra.Command, nickname string, staff bool) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := db.Migrate(cmd.Context(), e.gdb); err != nil {
		return err
	}
	if err := store.New(e.gdb).SetStaff(cmd.Context(), nickname, staff); err != nil {
		return fmt.Errorf("%s: %w", nickname, err)
	}
	e.log.Infow("staff flag updated", "nickname", nickname, "staff", staff)
	return nil
}

func init() {
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(demoteCmd)
}
