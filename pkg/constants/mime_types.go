package constants

import (
	"path/filepath"
	"strings"
)

// MIME types for the artifacts a run produces
const (
	MimeTypeOctetStream = "application/octet-stream"
	MimeTypeNumPy       = "application/x-numpy"
	MimeTypeMsgPack     = "application/msgpack"
	MimeTypeYAML        = "application/yaml"
	MimeTypePNG         = "image/png"
)

// MimeTypeForFile picks a content type from the artifact's extension
func MimeTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".npy":
		return MimeTypeNumPy
	case ".pth":
		return MimeTypeMsgPack
	case ".yaml", ".yml":
		return MimeTypeYAML
	case ".png":
		return MimeTypePNG
	default:
		return MimeTypeOctetStream
	}
}
