package identity

import "testing"

func TestLoadGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()

	first, err := Load(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.ParticipantID == "" {
		t.Fatal("expected a generated participant id")
	}

	second, err := Load(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.ParticipantID != first.ParticipantID {
		t.Fatalf("id changed across loads: %q vs %q", second.ParticipantID, first.ParticipantID)
	}
}

func TestSaveKeepsName(t *testing.T) {
	dir := t.TempDir()

	id, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	id.Name = "alice"
	if err := Save(dir, id); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Name != "alice" {
		t.Fatalf("name not persisted, got %q", again.Name)
	}
	if again.ParticipantID != id.ParticipantID {
		t.Fatal("participant id changed after rename")
	}
}
