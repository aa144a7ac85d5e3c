package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/palfrey/tavern/internal/client"
	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/session"
)

// Dashboard is the live session view shown while seated in a room. It
// renders from the observable session state and refreshes whenever the
// state notifies, so it carries no session data of its own.
type Dashboard struct {
	client    *client.Client
	state     *session.State
	spinner   spinner.Model
	notify    <-chan struct{}
	cancelSub func()
	quitting  bool
}

// stateChangedMsg marks a session state notification.
type stateChangedMsg struct{}

// NewDashboard builds the dashboard model for a running client.
func NewDashboard(c *client.Client) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	notify, cancel := c.State().Subscribe()
	return &Dashboard{
		client:    c,
		state:     c.State(),
		spinner:   s,
		notify:    notify,
		cancelSub: cancel,
	}
}

// RunDashboard runs the dashboard until the user quits.
func RunDashboard(c *client.Client) error {
	// Inline mode keeps earlier command output visible above the view.
	p := tea.NewProgram(NewDashboard(c))
	_, err := p.Run()
	return err
}

func (m *Dashboard) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange())
}

func (m *Dashboard) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.notify
		return stateChangedMsg{}
	}
}

func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.cancelSub()
			return m, tea.Quit
		case "l":
			m.client.LeaveSubRoom()
		}

	case stateChangedMsg:
		return m, m.waitForChange()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Dashboard) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(IconTavern+" Tavern") + "\n")

	if m.client.Connected() {
		b.WriteString(fmt.Sprintf("%s %s\n", IconConnect, SuccessStyle.Render("connected")))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), MutedStyle.Render("connecting...")))
	}

	self, ok := m.state.Self()
	if !ok {
		b.WriteString(MutedStyle.Render("waiting for the server...") + "\n")
		b.WriteString(FooterStyle.Render("q: quit"))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("%s %s\n", IconRoom, BoldStyle.Render(m.roomName(self))))
	if self.SubRoomID != nil {
		b.WriteString(fmt.Sprintf("%s %s\n", IconTable, BoldStyle.Render(m.subRoomName(self))))
	} else {
		b.WriteString(MutedStyle.Render("standing at the bar, no table yet") + "\n")
	}

	if msg := m.state.CaptureError(); msg != "" {
		b.WriteString(WarningStyle.Render(IconCamera+" no camera, receive-only: "+msg) + "\n")
	}

	b.WriteString(m.seatmates())
	b.WriteString(FooterStyle.Render("l: leave table  q: quit"))
	return b.String()
}

func (m *Dashboard) seatmates() string {
	links := m.state.Links()
	if len(links) == 0 {
		return MutedStyle.Render("nobody else seated here") + "\n"
	}

	ids := make([]string, 0, len(links))
	for id := range links {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("\n")
	for _, id := range ids {
		var icon string
		switch links[id] {
		case session.LinkConnected:
			icon = IconSuccess
		case session.LinkClosed:
			icon = IconError
		default:
			icon = IconWaiting
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n", icon, IconPeer, m.displayName(id)))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Dashboard) displayName(id string) string {
	if p, ok := m.state.Participant(id); ok && p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	if len(id) > 8 {
		return MutedStyle.Render(id[:8])
	}
	return MutedStyle.Render(id)
}

func (m *Dashboard) roomName(self protocol.Participant) string {
	if self.RoomID == nil {
		return "no room"
	}
	for _, room := range m.state.Rooms() {
		if room.ID == *self.RoomID {
			return room.Name
		}
	}
	return *self.RoomID
}

func (m *Dashboard) subRoomName(self protocol.Participant) string {
	for _, subRoom := range m.state.SubRooms() {
		if subRoom.ID == *self.SubRoomID {
			return subRoom.Name
		}
	}
	return *self.SubRoomID
}
