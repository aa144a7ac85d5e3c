package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palfrey/tavern/internal/ui"
)

var (
	flagTable       string
	flagDisplayName string
	flagCreateRoom  bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Enter a room and sit down at a table",
	Long: `Enter a room and, optionally, sit straight down at a table. Everyone at
the same table exchanges live camera video.

Examples:
  tavern join "The Green Dragon"
  tavern join "The Green Dragon" --table snug
  tavern join lounge --name Ada --create`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func joinRoom(nameOrID string) error {
	session, err := StartSession(flagDisplayName)
	if err != nil {
		return err
	}
	defer session.Close()

	stopSpinner := ui.RunConnectionSpinner("Entering the tavern...")
	defer stopSpinner()

	ctx, cancel := replyContext()
	defer cancel()

	rooms, err := session.Client.AwaitRooms(ctx)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	room, ok := matchRoom(rooms, nameOrID)
	if !ok {
		if !flagCreateRoom {
			return fmt.Errorf("no room named %q (use --create to open one)", nameOrID)
		}
		room, err = session.Client.AwaitRoomCreated(ctx, nameOrID)
		if err != nil {
			return fmt.Errorf("create room %q: %w", nameOrID, err)
		}
	}

	session.Client.JoinRoom(room.ID)

	if flagTable != "" {
		subRooms, err := session.Client.AwaitSubRooms(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("list tables in %q: %w", room.Name, err)
		}
		subRoom, found := matchSubRoom(subRooms, flagTable)
		if !found {
			subRoom, err = session.Client.AwaitSubRoomCreated(ctx, room.ID, flagTable)
			if err != nil {
				return fmt.Errorf("create table %q: %w", flagTable, err)
			}
		}
		session.Client.JoinSubRoom(subRoom.ID)
	}

	stopSpinner()
	err = ui.RunDashboard(session.Client)
	if msg := session.Client.State().CaptureError(); msg != "" {
		ui.PrintWarning("camera was unavailable, session was receive-only: " + msg)
	}
	return err
}

func init() {
	joinCmd.Flags().StringVarP(&flagTable, "table", "t", "", "table to sit at, created if missing")
	joinCmd.Flags().StringVarP(&flagDisplayName, "name", "n", "", "display name shown to other participants")
	joinCmd.Flags().BoolVar(&flagCreateRoom, "create", false, "create the room if it does not exist")
	rootCmd.AddCommand(joinCmd)
}
