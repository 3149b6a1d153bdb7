// Package fileutil provides conflict-safe file relocation. Nothing in
// this package deletes user files; moves fall back to copy-then-remove
// only across filesystems, and destinations are never overwritten.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// MoveFile moves src into destDir and returns the final destination path.
// If a file with the same name exists, a numeric suffix is appended
// before the extension (file_1.jpg, file_2.jpg, ...) until a free name is
// found.
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	filename := filepath.Base(src)
	destName := FindUniqueName(filename, func(name string) bool {
		_, err := os.Stat(filepath.Join(destDir, name))
		return os.IsNotExist(err)
	})

	dest := filepath.Join(destDir, destName)
	if err := moveFileAcrossFS(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FindUniqueName finds a free filename by appending a counter if needed.
// isAvailable should return true if the name can be used.
func FindUniqueName(filename string, isAvailable func(string) bool) string {
	if isAvailable(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", name, counter, ext)
		if isAvailable(candidate) {
			return candidate
		}
	}
}

// moveFileAcrossFS moves a file, falling back to copy+remove for
// cross-filesystem moves.
func moveFileAcrossFS(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errors.Is(linkErr.Err, syscall.EXDEV) {
			if err := copyFile(src, dest); err != nil {
				return err
			}
			return os.Remove(src)
		}
	}

	return err
}

// copyFile copies a file from src to dest, preserving the mode.
func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		os.Remove(dest)
		return err
	}

	return nil
}
