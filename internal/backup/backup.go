// Package backup snapshots files before they are overwritten and keeps a
// per-batch ledger so the last apply can be reverted.
package backup

import (
	"fmt"
	"io"
	"os"
	"time"

	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

// Suffix is appended to the original file name to form the backup path.
// Colliding backups are disambiguated with a numeric suffix and are never
// overwritten.
const Suffix = ".backup"

// maxBackupSlots bounds the numeric disambiguation search.
const maxBackupSlots = 10000

// Manager creates backups under the project root.
type Manager struct {
	root string
}

// New creates a Manager for the given project root.
func New(root string) *Manager {
	return &Manager{root: root}
}

// Backup snapshots the file at path. It returns (nil, nil) when the path
// does not exist: new files need no backup. A backup that cannot be
// completed is an error; the caller must not write to the original after a
// failed backup.
func (m *Manager) Backup(path string) (*model.BackupRecord, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errdef.WrapPath(errdef.EBackup, path, "cannot stat original", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errdef.NewPath(errdef.EBackup, path, "refusing to back up a non-regular file")
	}

	backupPath, err := m.reservePath(path)
	if err != nil {
		return nil, err
	}

	if err := copyFile(path, backupPath, info.Mode().Perm()); err != nil {
		return nil, errdef.WrapPath(errdef.EBackup, path, "backup copy failed", err)
	}

	return &model.BackupRecord{
		OriginalPath: path,
		BackupPath:   backupPath,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// reservePath picks the first free backup path: path.backup, then
// path.backup.1, path.backup.2, and so on.
func (m *Manager) reservePath(path string) (string, error) {
	candidate := path + Suffix
	for i := 0; i < maxBackupSlots; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s%s.%d", path, Suffix, i)
		}
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", errdef.NewPath(errdef.EBackup, path, "no free backup slot")
}

// copyFile copies src to dst, creating dst exclusively so a concurrent
// reservation of the same slot fails instead of clobbering.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
