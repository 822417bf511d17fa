package docsource

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// DefaultMediaType is used when neither content nor extension identify a file.
const DefaultMediaType = "application/octet-stream"

// extensionTypes covers extensions missing from the platform MIME table.
var extensionTypes = map[string]string{
	".txt":  "text/plain",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".heif": "image/heif",
}

var supportedMediaTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"text/plain":      true,
	"text/csv":        true,
}

// DetectMediaType sniffs content first and falls back to the file
// extension. Parameters such as charset are dropped.
func DetectMediaType(name string, content []byte) string {
	if len(content) > 0 {
		if kind, err := filetype.Match(content); err == nil && kind != types.Unknown {
			return kind.MIME.Value
		}
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if mt, ok := extensionTypes[ext]; ok {
			return mt
		}
		if mt := mime.TypeByExtension(ext); mt != "" {
			return baseMediaType(mt)
		}
	}
	return DefaultMediaType
}

// ResolveMediaType keeps a declared media type unless it is empty or the
// generic octet-stream type.
func ResolveMediaType(declared, name string, content []byte) string {
	declared = baseMediaType(declared)
	if declared != "" && declared != DefaultMediaType {
		return declared
	}
	return DetectMediaType(name, content)
}

// Supported reports whether the extraction service accepts the media type.
func Supported(mediaType string) bool {
	return supportedMediaTypes[baseMediaType(mediaType)]
}

func baseMediaType(mt string) string {
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
