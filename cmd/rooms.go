package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"pubs"},
	Short:   "List, create and delete rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms()
	},
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms()
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := StartSession("")
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := replyContext()
		defer cancel()
		room, err := session.Client.AwaitRoomCreated(ctx, args[0])
		if err != nil {
			return fmt.Errorf("create room %q: %w", args[0], err)
		}
		ui.PrintSuccessf("Room %s created (%s)", ui.BoldStyle.Render(room.Name), room.ID)
		return nil
	},
}

var roomsDeleteCmd = &cobra.Command{
	Use:   "delete <room>",
	Short: "Delete a room by name or id",
	Args:  cobra.ExactArgs(1),
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
		session.Client.DeleteRoom(room.ID)
		rooms, err := session.Client.AwaitRooms(ctx)
		if err != nil {
			return fmt.Errorf("delete room %q: %w", args[0], err)
		}
		ui.PrintSuccessf("Room %s deleted", ui.BoldStyle.Render(room.Name))
		ui.RenderRooms(rooms)
		return nil
	},
}

func listRooms() error {
	session, err := StartSession("")
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := replyContext()
	defer cancel()
	stopSpinner := ui.RunSpinner("Fetching rooms...")
	defer stopSpinner()
	rooms, err := session.Client.AwaitRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	stopSpinner()
	ui.RenderRooms(rooms)
	return nil
}

// resolveRoom fetches the listing and finds a room by display name first,
// falling back to id match.
func resolveRoom(ctx context.Context, session *Session, nameOrID string) (protocol.Room, error) {
	rooms, err := session.Client.AwaitRooms(ctx)
	if err != nil {
		return protocol.Room{}, fmt.Errorf("list rooms: %w", err)
	}
	room, ok := matchRoom(rooms, nameOrID)
	if !ok {
		return protocol.Room{}, fmt.Errorf("no room named %q", nameOrID)
	}
	return room, nil
}

func init() {
	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd, roomsDeleteCmd)
	rootCmd.AddCommand(roomsCmd)
}

func matchRoom(rooms []protocol.Room, nameOrID string) (protocol.Room, bool) {
	for _, room := range rooms {
		if strings.EqualFold(room.Name, nameOrID) {
			return room, true
		}
	}
	for _, room := range rooms {
		if room.ID == nameOrID {
			return room, true
		}
	}
	return protocol.Room{}, false
}
