package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFolderManager_CreateReceiptFolder(t *testing.T) {
	tempDir := t.TempDir()
	fm := NewFolderManager(tempDir, zap.NewNop())

	t.Run("creates folder", func(t *testing.T) {
		path, err := fm.CreateReceiptFolder("3f8a2a60-1111-2222-3333-444455556666")
		require.NoError(t, err)
		assert.DirExists(t, path)
		assert.Equal(t, filepath.Join(tempDir, "3f8a2a60-1111-2222-3333-444455556666"), path)
	})

	t.Run("creating twice is fine", func(t *testing.T) {
		_, err := fm.CreateReceiptFolder("twice")
		require.NoError(t, err)
		_, err = fm.CreateReceiptFolder("twice")
		assert.NoError(t, err)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		_, err := fm.CreateReceiptFolder("")
		assert.Error(t, err)
	})

	t.Run("traversal characters stripped", func(t *testing.T) {
		path, err := fm.CreateReceiptFolder("../../../evil")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "evil"), path)
	})
}

func TestFolderManager_Paths(t *testing.T) {
	fm := NewFolderManager("/data/receipts", zap.NewNop())

	assert.Equal(t, "/data/receipts/abc/original.pdf", fm.OriginalPath("abc", "scan.pdf"))
	assert.Equal(t, "/data/receipts/abc/original.jpg", fm.OriginalPath("abc", "IMG_0042.JPG"))
	assert.Equal(t, "/data/receipts/abc/original.bin", fm.OriginalPath("abc", "noext"))
	assert.Equal(t, "/data/receipts/abc/pages/page-1.png", fm.PagePath("abc", 1))
	assert.Equal(t, "/data/receipts/abc/ocr.txt", fm.ArtifactPath("abc", OCRTextFile))
	assert.Equal(t, "/data/receipts/abc/llm_reply.json", fm.ArtifactPath("abc", LLMReplyFile))
}

func TestFolderManager_DeleteReceiptFolder(t *testing.T) {
	tempDir := t.TempDir()
	fm := NewFolderManager(tempDir, zap.NewNop())

	t.Run("deletes folder and contents", func(t *testing.T) {
		path, err := fm.CreateReceiptFolder("to-delete")
		require.NoError(t, err)

		fs := NewLocalFileStorage(tempDir, zap.NewNop())
		require.NoError(t, fs.SaveFile(filepath.Join(path, "pages", "page-1.png"), []byte("png")))

		require.NoError(t, fm.DeleteReceiptFolder("to-delete"))
		assert.NoDirExists(t, path)
	})

	t.Run("deleting missing folder is a no-op", func(t *testing.T) {
		assert.NoError(t, fm.DeleteReceiptFolder("never-existed"))
	})
}
