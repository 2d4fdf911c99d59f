package engine

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// contentType resolves a media type from the file extension, falling back to
// sniffing the content. Parameters such as charset are dropped.
func contentType(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return stripParams(ct)
		}
	}

	mt, err := mimetype.DetectFile(filename)
	if err != nil || mt == nil {
		return defaultContentType
	}
	return stripParams(mt.String())
}

func stripParams(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}
