package ui

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/palfrey/tavern/internal/client"
	"github.com/palfrey/tavern/internal/config"
	"github.com/palfrey/tavern/internal/identity"
	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/session"
)

func seatedClient(t *testing.T) *client.Client {
	t.Helper()
	cfg := &config.Config{Domain: "tavern.test", Heartbeat: time.Hour}
	id := &identity.Identity{ParticipantID: "self-1", Name: "Ada"}
	c := client.New(slog.Default(), cfg, id)

	roomID, subRoomID := "pub-1", "tbl-1"
	c.State().UpsertParticipant(protocol.Participant{ID: "self-1", RoomID: &roomID, SubRoomID: &subRoomID})
	return c
}

func TestDashboardViewShowsCaptureError(t *testing.T) {
	c := seatedClient(t)
	c.State().SetCaptureError("permission denied")

	d := NewDashboard(c)
	view := d.View()
	if !strings.Contains(view, IconCamera) {
		t.Error("capture error line missing the camera icon")
	}
	if !strings.Contains(view, "permission denied") {
		t.Error("capture error message not rendered")
	}
}

func TestDashboardViewListsSeatmatesByPhase(t *testing.T) {
	c := seatedClient(t)
	name := "Bea"
	c.State().UpsertParticipant(protocol.Participant{ID: "peer-1", Name: &name})
	c.State().SetLinkPhase("peer-1", session.LinkConnected)
	c.State().SetLinkPhase("peer-2", session.LinkNegotiating)

	view := NewDashboard(c).View()
	if !strings.Contains(view, "Bea") {
		t.Error("connected seatmate not rendered by display name")
	}
	if !strings.Contains(view, IconWaiting) {
		t.Error("negotiating seatmate not rendered as pending")
	}
}
