package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

const (
	historyDirName  = ".cmdr"
	historyFileName = "history.json"
)

// BatchEntry records one completed apply batch: which paths were created
// and which overwrites can be undone from their backups.
type BatchEntry struct {
	Timestamp   time.Time            `json:"timestamp"`
	Created     []string             `json:"created,omitempty"`
	Overwritten []model.BackupRecord `json:"overwritten,omitempty"`
}

// History is the on-disk ledger of apply batches under one project root.
type History struct {
	Batches []BatchEntry `json:"batches"`
}

func historyPath(root string) string {
	return filepath.Join(root, historyDirName, historyFileName)
}

// LoadHistory reads the ledger, returning an empty one when none exists.
func LoadHistory(root string) (*History, error) {
	data, err := os.ReadFile(historyPath(root))
	if os.IsNotExist(err) {
		return &History{}, nil
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.EInternal, "cannot read history", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errdef.Wrap(errdef.EInternal, "history file is corrupt", err)
	}
	return &h, nil
}

// Append records a batch and persists the ledger.
func (h *History) Append(root string, entry BatchEntry) error {
	h.Batches = append(h.Batches, entry)
	return h.save(root)
}

// PopLast removes and returns the most recent batch, or nil when the
// ledger is empty.
func (h *History) PopLast(root string) (*BatchEntry, error) {
	if len(h.Batches) == 0 {
		return nil, nil
	}
	last := h.Batches[len(h.Batches)-1]
	h.Batches = h.Batches[:len(h.Batches)-1]
	if err := h.save(root); err != nil {
		return nil, err
	}
	return &last, nil
}

func (h *History) save(root string) error {
	dir := filepath.Join(root, historyDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errdef.Wrap(errdef.EInternal, "cannot create history directory", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.EInternal, "cannot encode history", err)
	}
	if err := os.WriteFile(historyPath(root), data, 0o644); err != nil {
		return errdef.Wrap(errdef.EInternal, "cannot write history", err)
	}
	return nil
}

// Revert undoes the most recent batch: created files are removed and
// overwritten files are restored from their backups. The backup files
// themselves are kept. It returns the reverted entry, or nil when there is
// nothing to revert.
func Revert(root string) (*BatchEntry, error) {
	h, err := LoadHistory(root)
	if err != nil {
		return nil, err
	}
	entry, err := h.PopLast(root)
	if err != nil || entry == nil {
		return entry, err
	}

	for _, rec := range entry.Overwritten {
		data, err := os.ReadFile(rec.BackupPath)
		if err != nil {
			return entry, errdef.WrapPath(errdef.EBackup, rec.BackupPath, "cannot read backup", err)
		}
		// The backup carries the original's mode; restoring with it matters
		// when the original was deleted after the apply.
		perm := os.FileMode(0o644)
		if info, err := os.Stat(rec.BackupPath); err == nil {
			perm = info.Mode().Perm()
		}
		if err := os.WriteFile(rec.OriginalPath, data, perm); err != nil {
			return entry, errdef.WrapPath(errdef.EWrite, rec.OriginalPath, "cannot restore original", err)
		}
	}
	for _, path := range entry.Created {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return entry, errdef.WrapPath(errdef.EWrite, path, "cannot remove created file", err)
		}
	}
	return entry, nil
}
