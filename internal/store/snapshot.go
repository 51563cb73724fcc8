// Package store implements crash-safe JSON snapshot persistence. A save
// writes the full payload to a temporary file, keeps the previous good copy
// as a rolling backup, then renames the temporary file into place, so a
// partial write can never leave the store unreadable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type SnapshotFile struct {
	path string
}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

func (f *SnapshotFile) Path() string {
	return f.path
}

// Load reads the snapshot into v. A missing file with no backup is not an
// error: v is left untouched and false is returned. If the primary file is
// missing or corrupt the rolling backup is tried before giving up.
func (f *SnapshotFile) Load(v any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		// A save rotates the previous snapshot aside before the new one
		// lands, so a crash between the two renames leaves only the backup.
		backup, berr := os.ReadFile(f.path + ".backup")
		if errors.Is(berr, fs.ErrNotExist) {
			return false, nil
		}
		if berr != nil {
			return false, fmt.Errorf("read snapshot backup %s: %w", f.path+".backup", berr)
		}
		if err := json.Unmarshal(backup, v); err != nil {
			return false, fmt.Errorf("snapshot %s is missing and its backup is corrupt", f.path)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, v); err == nil {
		return true, nil
	}

	backup, berr := os.ReadFile(f.path + ".backup")
	if berr != nil {
		return false, fmt.Errorf("snapshot %s is corrupt and no backup is readable", f.path)
	}
	if err := json.Unmarshal(backup, v); err != nil {
		return false, fmt.Errorf("snapshot %s and its backup are corrupt", f.path)
	}
	return true, nil
}

// Save marshals v and atomically replaces the snapshot.
func (f *SnapshotFile) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return f.Write(data)
}

// Write atomically replaces the snapshot with pre-serialized data. Callers
// that guard in-memory state with a lock should marshal under the lock and
// call Write after releasing it.
func (f *SnapshotFile) Write(data []byte) error {
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	// Previous good copy becomes the backup; kept until the next save.
	if _, err := os.Stat(f.path); err == nil {
		if err := os.Rename(f.path, f.path+".backup"); err != nil {
			return fmt.Errorf("rotate snapshot backup: %w", err)
		}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
