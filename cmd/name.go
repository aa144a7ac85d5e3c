package cmd

import (
	"github.com/spf13/cobra"

	"github.com/palfrey/tavern/internal/identity"
	"github.com/palfrey/tavern/internal/ui"
)

var nameCmd = &cobra.Command{
	Use:   "name [display-name]",
	Short: "Show or set the display name other participants see",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := identity.DefaultDir()
		if err != nil {
			return err
		}
		id, err := identity.Load(dir)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if id.Name == "" {
				ui.PrintInfo("No display name set. Others see your participant id.")
				return nil
			}
			ui.PrintInfo("Display name: " + ui.BoldStyle.Render(id.Name))
			return nil
		}

		id.Name = args[0]
		if err := identity.Save(dir, id); err != nil {
			return err
		}
		ui.PrintSuccessf("Display name set to %s", ui.BoldStyle.Render(id.Name))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nameCmd)
}
