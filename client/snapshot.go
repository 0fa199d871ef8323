package client

import (
	"encoding/json"
	"errors"
	"io"

	"storefront/internal/models"
)

// Snapshot persistence is an explicit serialization boundary: versioned so
// that state written by an old session cannot be misread into the current
// shape. A loaded snapshot is only a display hint; the next Fetch replaces
// it wholesale.

const snapshotVersion = 1

var (
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
	ErrSnapshotUser    = errors.New("snapshot belongs to a different user")
)

type cartSnapshot struct {
	Version int               `json:"version"`
	UserID  string            `json:"user_id"`
	Items   []models.CartItem `json:"items"`
}

func (s *CartStore) SaveSnapshot(w io.Writer) error {
	snapshot := cartSnapshot{
		Version: snapshotVersion,
		UserID:  s.userID,
		Items:   s.Items(),
	}
	return json.NewEncoder(w).Encode(snapshot)
}

func (s *CartStore) LoadSnapshot(r io.Reader) error {
	var snapshot cartSnapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return err
	}
	if snapshot.Version != snapshotVersion {
		return ErrSnapshotVersion
	}
	if snapshot.UserID != s.userID {
		return ErrSnapshotUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.Items == nil {
		snapshot.Items = []models.CartItem{}
	}
	s.items = snapshot.Items
	return nil
}
