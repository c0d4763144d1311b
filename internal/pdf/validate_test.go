package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContentType(t *testing.T) {
	pdfData := []byte("%PDF-1.7\n%âãÏÓ")
	pngData := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	t.Run("pdf accepted", func(t *testing.T) {
		mime, err := DetectContentType(pdfData, "receipt.pdf")
		require.NoError(t, err)
		assert.Equal(t, MimePDF, mime)
	})

	t.Run("png accepted", func(t *testing.T) {
		mime, err := DetectContentType(pngData, "scan.PNG")
		require.NoError(t, err)
		assert.Equal(t, MimePNG, mime)
	})

	t.Run("jpeg accepted", func(t *testing.T) {
		mime, err := DetectContentType(jpegData, "photo.jpeg")
		require.NoError(t, err)
		assert.Equal(t, MimeJPEG, mime)
	})

	t.Run("extension and signature mismatch rejected", func(t *testing.T) {
		_, err := DetectContentType(pngData, "receipt.pdf")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("renamed executable rejected", func(t *testing.T) {
		_, err := DetectContentType([]byte("MZ\x90\x00"), "receipt.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("unknown extension rejected", func(t *testing.T) {
		_, err := DetectContentType(pdfData, "receipt.docx")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := DetectContentType(nil, "receipt.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.4")))
	assert.False(t, IsPDF([]byte("PDF-1.4")))
	assert.False(t, IsPDF(nil))
}
