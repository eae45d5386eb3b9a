package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// renameFile is swapped in tests to simulate crashes and platforms where
// renaming over an existing file fails.
var renameFile = os.Rename

// stagePath returns the staging file name used for a write of target
func stagePath(target string) string {
	return fmt.Sprintf("%s.tmp-%d-%d", target, os.Getpid(), time.Now().UnixNano())
}

// atomicWrite performs an atomic file write using stage file → sync → rename.
// If the rename fails for a reason other than a missing file, the stage file is
// copied over the target instead and then removed.
func atomicWrite(targetPath string, data []byte) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := stagePath(targetPath)
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create stage file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to write to stage file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to sync stage file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close stage file: %w", err)
	}

	if err := renameFile(tempPath, targetPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to rename stage file to target: %w", err)
		}
		if cerr := copyFile(tempPath, targetPath); cerr != nil {
			return fmt.Errorf("failed to rename stage file (%v) and copy fallback failed: %w", err, cerr)
		}
	}

	success = true
	_ = os.Remove(tempPath)
	return nil
}

// copyFile overwrites dst with the contents of src and syncs it
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
