package copymeta

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// CopySummary is the advisory catalog entry recorded for a successfully
// persisted Meta, letting a caller list or find copies without
// re-parsing every JSON sidecar.
type CopySummary struct {
	CopyName   string     `json:"copyName"`
	MetaPath   string     `json:"metaPath"`
	BackupType BackupType `json:"backupType"`
	VolumeSize uint64     `json:"volumeSize"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Registry is a durable, advisory catalog of copies backed by an
// embedded pebble LSM store. The JSON sidecar written by Save/Load
// remains the source of truth; a missing or corrupt registry never
// blocks backup or restore, only ListCopies/FindCopy.
type Registry struct {
	db *pebble.DB
}

// OpenRegistry opens (creating if necessary) the registry database at
// {metaDir}/registry.pebble.
func OpenRegistry(metaDir string) (*Registry, error) {
	db, err := pebble.Open(filepath.Join(metaDir, "registry.pebble"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("copymeta: open registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close releases the registry's database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// RegisterCopy records (or overwrites) the catalog entry for meta.
func (r *Registry) RegisterCopy(metaDir string, meta *Meta, createdAt time.Time) error {
	summary := CopySummary{
		CopyName:   meta.CopyName,
		MetaPath:   Path(metaDir, meta.CopyName),
		BackupType: meta.BackupType,
		VolumeSize: meta.VolumeSize,
		CreatedAt:  createdAt,
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.db.Set([]byte(meta.CopyName), raw, pebble.Sync)
}

// FindCopy looks up one copy by name.
func (r *Registry) FindCopy(copyName string) (CopySummary, bool, error) {
	raw, closer, err := r.db.Get([]byte(copyName))
	if errors.Is(err, pebble.ErrNotFound) {
		return CopySummary{}, false, nil
	}
	if err != nil {
		return CopySummary{}, false, err
	}
	defer closer.Close()

	var summary CopySummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return CopySummary{}, false, fmt.Errorf("copymeta: corrupt registry entry for %s: %w", copyName, err)
	}
	return summary, true, nil
}

// ListCopies returns every registered copy, ordered by name.
func (r *Registry) ListCopies() ([]CopySummary, error) {
	iter, err := r.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []CopySummary
	for iter.First(); iter.Valid(); iter.Next() {
		var summary CopySummary
		if err := json.Unmarshal(iter.Value(), &summary); err != nil {
			continue // a corrupt entry should not block listing the rest
		}
		out = append(out, summary)
	}
	return out, iter.Error()
}

// ForgetCopy removes copyName's catalog entry.
func (r *Registry) ForgetCopy(copyName string) error {
	return r.db.Delete([]byte(copyName), pebble.Sync)
}
