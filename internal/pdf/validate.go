package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MIME types accepted for upload.
const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// ErrUnsupportedType marks signature or extension validation failures so
// callers can map them to a client error.
var ErrUnsupportedType = errors.New("unsupported file type")

var (
	pdfMagic  = []byte("%PDF-")
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// DetectContentType sniffs the file signature and checks it against the
// uploaded filename's extension. Extension/signature mismatches are
// rejected before any parsing happens.
func DetectContentType(data []byte, filename string) (string, error) {
	mime := sniff(data)
	if mime == "" {
		return "", fmt.Errorf("%w: unrecognized file signature", ErrUnsupportedType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		if mime != MimePDF {
			return "", fmt.Errorf("%w: file %q does not start with %%PDF-", ErrUnsupportedType, filename)
		}
	case ".png":
		if mime != MimePNG {
			return "", fmt.Errorf("%w: file %q is not a PNG image", ErrUnsupportedType, filename)
		}
	case ".jpg", ".jpeg":
		if mime != MimeJPEG {
			return "", fmt.Errorf("%w: file %q is not a JPEG image", ErrUnsupportedType, filename)
		}
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}

	return mime, nil
}

// IsPDF reports whether the content carries a PDF signature.
func IsPDF(data []byte) bool {
	return sniff(data) == MimePDF
}

func sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return MimePDF
	case bytes.HasPrefix(data, pngMagic):
		return MimePNG
	case bytes.HasPrefix(data, jpegMagic):
		return MimeJPEG
	default:
		return ""
	}
}
