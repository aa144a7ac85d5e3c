package ui

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/palfrey/tavern/internal/protocol"
)

func newListWriter(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Colors = text.Colors{text.FgHiYellow, text.Bold}
	t.Style().Color.Header = text.Colors{text.FgYellow, text.Bold}
	return t
}

// RenderRooms prints the room listing table used by one-shot commands.
func RenderRooms(rooms []protocol.Room) {
	if len(rooms) == 0 {
		fmt.Println(MutedStyle.Render("No rooms yet. Create one with: tavern rooms create <name>"))
		return
	}
	t := newListWriter(IconTavern + " Rooms")
	t.AppendHeader(table.Row{"Name", "ID", "People"})
	for _, room := range rooms {
		t.AppendRow(table.Row{room.Name, room.ID, len(room.Persons)})
	}
	t.Render()
}

// RenderSubRooms prints the sub-room listing for one room.
func RenderSubRooms(roomName string, subRooms []protocol.SubRoom) {
	if len(subRooms) == 0 {
		fmt.Println(MutedStyle.Render("No tables in this room yet."))
		return
	}
	t := newListWriter(IconTable + " Tables in " + roomName)
	t.AppendHeader(table.Row{"Name", "ID", "Seated"})
	for _, subRoom := range subRooms {
		t.AppendRow(table.Row{subRoom.Name, subRoom.ID, len(subRoom.Persons)})
	}
	t.Render()
}
