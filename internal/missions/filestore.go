package missions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nestor-assistant/nestor/internal/storage/dirstore"
)

// FileStore persists checkpoints as one directory per (user, mission) pair
// with a checkpoint.json document.
type FileStore struct {
	ds *dirstore.Store
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.New(baseDir, "mission")}
}

// dirID builds a filesystem-safe directory name for a checkpoint key.
// Underscores inside either ID are escaped so the "__" separator stays
// unambiguous and per-user prefix scans cannot cross into another user.
func dirID(userID, missionID string) string {
	return escapeKey(userID) + "__" + escapeKey(missionID)
}

func escapeKey(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "_", "%5F")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '-'
		}
		return r
	}, s)
}

func (fs *FileStore) Get(_ context.Context, userID, missionID string) (*Checkpoint, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	var cp Checkpoint
	if err := fs.ds.ReadDoc(dirID(userID, missionID), "checkpoint.json", &cp); err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, fmt.Errorf("mission %s/%s: %w", userID, missionID, ErrNotFound)
		}
		return nil, err
	}
	return &cp, nil
}

func (fs *FileStore) Put(_ context.Context, cp *Checkpoint) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.WriteDoc(dirID(cp.UserID, cp.MissionID), "checkpoint.json", cp)
}

func (fs *FileStore) LatestInProgress(_ context.Context, userID string) (*Checkpoint, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	ids, err := fs.ds.IDs()
	if err != nil {
		return nil, err
	}

	prefix := dirID(userID, "")
	var latest *Checkpoint
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		var cp Checkpoint
		if err := fs.ds.ReadDoc(id, "checkpoint.json", &cp); err != nil {
			continue
		}
		if cp.UserID != userID || cp.Status != StatusInProgress {
			continue
		}
		if latest == nil || cp.UpdatedAt.After(latest.UpdatedAt) {
			c := cp
			latest = &c
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return latest, nil
}
