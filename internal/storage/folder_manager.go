package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Artifact filenames inside a receipt folder.
const (
	OCRTextFile  = "ocr.txt"
	LLMReplyFile = "llm_reply.json"
	PagesSubdir  = "pages"
)

// FolderManager lays out one directory per receipt under the data root:
//
//	<base>/<receipt-id>/original.<ext>
//	<base>/<receipt-id>/pages/page-N.png
//	<base>/<receipt-id>/ocr.txt
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// CreateReceiptFolder creates the folder for a receipt and returns its path.
func (m *FolderManager) CreateReceiptFolder(receiptID string) (string, error) {
	if receiptID == "" {
		return "", fmt.Errorf("cannot create folder: empty receipt ID")
	}

	safeName := m.SanitizeFolderName(receiptID)
	folderPath := filepath.Join(m.baseDir, safeName)

	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create receipt folder",
			zap.String("receipt_id", receiptID),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	m.logger.Debug("Created receipt folder",
		zap.String("receipt_id", receiptID),
		zap.String("folder_path", folderPath))

	return folderPath, nil
}

// ReceiptFolderPath returns the folder path for a receipt without creating it.
func (m *FolderManager) ReceiptFolderPath(receiptID string) string {
	return filepath.Join(m.baseDir, m.SanitizeFolderName(receiptID))
}

// OriginalPath returns the path for the stored original upload, keeping the
// uploaded file's extension.
func (m *FolderManager) OriginalPath(receiptID, originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if ext == "" {
		ext = ".bin"
	}
	return filepath.Join(m.ReceiptFolderPath(receiptID), "original"+ext)
}

// PagePath returns the path for a rasterized page image (1-based).
func (m *FolderManager) PagePath(receiptID string, page int) string {
	return filepath.Join(m.ReceiptFolderPath(receiptID), PagesSubdir, fmt.Sprintf("page-%d.png", page))
}

// ArtifactPath returns the path for a named artifact inside the folder.
func (m *FolderManager) ArtifactPath(receiptID, name string) string {
	return filepath.Join(m.ReceiptFolderPath(receiptID), name)
}

// DeleteReceiptFolder removes a receipt folder and all contents. Deleting a
// missing folder is a no-op.
func (m *FolderManager) DeleteReceiptFolder(receiptID string) error {
	folderPath := m.ReceiptFolderPath(receiptID)

	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(folderPath); err != nil {
		m.logger.Error("Failed to delete receipt folder",
			zap.String("receipt_id", receiptID),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	m.logger.Debug("Deleted receipt folder",
		zap.String("receipt_id", receiptID),
		zap.String("folder_path", folderPath))

	return nil
}

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeFolderName returns a filesystem-safe version of the name.
// Removes path separators and special characters to prevent traversal.
func (m *FolderManager) SanitizeFolderName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	return unsafeFolderChars.ReplaceAllString(name, "")
}
