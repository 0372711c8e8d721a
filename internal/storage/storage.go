// Package storage persists the shell's session so it survives restarts.
//
// Persistence belongs to the identity provider client; the authentication
// state store never reads or writes here directly.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leansocial/shell/internal/crypto"
	"github.com/leansocial/shell/internal/session"
)

// ErrSessionNotFound is returned when no session is stored for a profile
var ErrSessionNotFound = errors.New("session not found")

// SessionStore loads and saves the session of a named profile
type SessionStore interface {
	Load(ctx context.Context, profile string) (*session.Snapshot, error)
	Save(ctx context.Context, profile string, snap *session.Snapshot) error
	// Delete is a no-op when nothing is stored
	Delete(ctx context.Context, profile string) error
	Close() error
}

// Event reports a change made by another writer. Snapshot is nil when the
// session was deleted.
type Event struct {
	Profile  string
	Snapshot *session.Snapshot
}

// Watcher is implemented by stores shared between processes. Changes made
// through the watching store itself are not reported.
type Watcher interface {
	Watch(ctx context.Context, profile string) (<-chan Event, error)
}

// sealSnapshot serialises and encrypts a snapshot for at-rest storage
func sealSnapshot(enc crypto.Encryptor, snap *session.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	sealed, err := enc.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt session: %w", err)
	}
	return sealed, nil
}

func openSnapshot(enc crypto.Encryptor, sealed string) (*session.Snapshot, error) {
	data, err := enc.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &snap, nil
}
