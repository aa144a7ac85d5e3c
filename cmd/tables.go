package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/ui"
)

var tablesCmd = &cobra.Command{
	Use:   "tables <room>",
	Short: "List a room's tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := StartSession("")
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := replyContext()
		defer cancel()
		stopSpinner := ui.RunSpinner("Fetching tables...")
		defer stopSpinner()
		room, err := resolveRoom(ctx, session, args[0])
		if err != nil {
			return err
		}
		subRooms, err := session.Client.AwaitSubRooms(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("list tables in %q: %w", room.Name, err)
		}
		stopSpinner()
		ui.RenderSubRooms(room.Name, subRooms)
		return nil
	},
}

var tablesCreateCmd = &cobra.Command{
	Use:   "create <room> <name>",
	Short: "Create a table in a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := StartSession("")
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := replyContext()
		defer cancel()
		room, err := resolveRoom(ctx, session, args[0])
		if err != nil {
			return err
		}
		subRoom, err := session.Client.AwaitSubRoomCreated(ctx, room.ID, args[1])
		if err != nil {
			return fmt.Errorf("create table %q: %w", args[1], err)
		}
		ui.PrintSuccessf("Table %s created in %s (%s)",
			ui.BoldStyle.Render(subRoom.Name), room.Name, subRoom.ID)
		return nil
	},
}

var tablesDeleteCmd = &cobra.Command{
	Use:   "delete <room> <table>",
	Short: "Delete a table by name or id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := StartSession("")
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := replyContext()
		defer cancel()
		subRoom, _, err := resolveSubRoom(ctx, session, args[0], args[1])
		if err != nil {
			return err
		}
		session.Client.DeleteSubRoom(subRoom.ID)
		ui.PrintSuccessf("Table %s deleted", ui.BoldStyle.Render(subRoom.Name))
		return nil
	},
}

// resolveSubRoom resolves the room, lists its tables, and picks one by name
// or id.
func resolveSubRoom(ctx context.Context, session *Session, roomNameOrID, nameOrID string) (protocol.SubRoom, protocol.Room, error) {
	room, err := resolveRoom(ctx, session, roomNameOrID)
	if err != nil {
		return protocol.SubRoom{}, protocol.Room{}, err
	}
	subRooms, err := session.Client.AwaitSubRooms(ctx, room.ID)
	if err != nil {
		return protocol.SubRoom{}, room, fmt.Errorf("list tables in %q: %w", room.Name, err)
	}
	subRoom, ok := matchSubRoom(subRooms, nameOrID)
	if !ok {
		return protocol.SubRoom{}, room, fmt.Errorf("no table named %q in %q", nameOrID, room.Name)
	}
	return subRoom, room, nil
}

func matchSubRoom(subRooms []protocol.SubRoom, nameOrID string) (protocol.SubRoom, bool) {
	for _, subRoom := range subRooms {
		if strings.EqualFold(subRoom.Name, nameOrID) {
			return subRoom, true
		}
	}
	for _, subRoom := range subRooms {
		if subRoom.ID == nameOrID {
			return subRoom, true
		}
	}
	return protocol.SubRoom{}, false
}

func init() {
	tablesCmd.AddCommand(tablesCreateCmd, tablesDeleteCmd)
	rootCmd.AddCommand(tablesCmd)
}
