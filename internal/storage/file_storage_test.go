package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveFile(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())

	t.Run("saves file successfully", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "receipt-1", "original.pdf")
		content := []byte("%PDF-1.7 content")

		err := fs.SaveFile(fullPath, content)

		require.NoError(t, err)
		assert.FileExists(t, fullPath)

		savedContent, err := os.ReadFile(fullPath)
		require.NoError(t, err)
		assert.Equal(t, content, savedContent)
	})

	t.Run("creates parent directories", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "receipt-2", "pages", "page-1.png")

		err := fs.SaveFile(fullPath, []byte("png"))

		require.NoError(t, err)
		assert.FileExists(t, fullPath)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "receipt-3", "ocr.txt")

		require.NoError(t, fs.SaveFile(fullPath, []byte("original")))
		require.NoError(t, fs.SaveFile(fullPath, []byte("updated")))

		content, _ := os.ReadFile(fullPath)
		assert.Equal(t, []byte("updated"), content)
	})

	t.Run("rejects path outside base", func(t *testing.T) {
		err := fs.SaveFile("/tmp/outside.txt", []byte("nope"))
		assert.Error(t, err)
	})
}

func TestLocalFileStorage_ReadFile(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())

	t.Run("round trip", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "receipt", "ocr.txt")
		require.NoError(t, fs.SaveFile(fullPath, []byte("TOTAL 13.77")))

		content, err := fs.ReadFile(fullPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("TOTAL 13.77"), content)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := fs.ReadFile(filepath.Join(tempDir, "missing.txt"))
		assert.Error(t, err)
	})

	t.Run("refuses to read outside base", func(t *testing.T) {
		_, err := fs.ReadFile("/etc/passwd")
		assert.Error(t, err)
	})
}

func TestLocalFileStorage_ValidatePath(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())

	t.Run("accepts path within base", func(t *testing.T) {
		assert.NoError(t, fs.ValidatePath(filepath.Join(tempDir, "receipt", "file.pdf")))
	})

	t.Run("rejects path outside base", func(t *testing.T) {
		err := fs.ValidatePath("/etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes base directory")
	})

	t.Run("rejects traversal", func(t *testing.T) {
		err := fs.ValidatePath(filepath.Join(tempDir, "..", "..", "etc", "passwd"))
		assert.Error(t, err)
	})

	t.Run("rejects sibling directory with base prefix", func(t *testing.T) {
		err := fs.ValidatePath(tempDir + "-evil/file.pdf")
		assert.Error(t, err)
	})
}
