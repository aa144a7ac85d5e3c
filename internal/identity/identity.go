// Package identity manages the persisted client identity. The participant id
// is generated once and survives restarts, so a returning client keeps the
// same session identity the server already knows.
package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const fileName = "identity.msgpack"

// Identity is the only client state persisted across runs.
type Identity struct {
	ParticipantID string `msgpack:"participant_id"`
	Name          string `msgpack:"name,omitempty"`
}

// Load reads the identity from dir, creating and persisting a fresh one when
// none exists yet. An unreadable or corrupt file is replaced rather than
// treated as fatal, since the worst outcome is a new session identity.
func Load(dir string) (*Identity, error) {
	path := filepath.Join(dir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := msgpack.Unmarshal(data, &id); err == nil && id.ParticipantID != "" {
			return &id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	id := &Identity{ParticipantID: uuid.NewString()}
	if err := Save(dir, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Save writes the identity to dir, creating the directory if needed.
func Save(dir string, id *Identity) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}

	data, err := msgpack.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// DefaultDir returns the per-user directory holding the identity file.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "tavern"), nil
}
