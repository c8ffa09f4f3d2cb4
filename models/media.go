package models

import (
	"path/filepath"
	"strings"
)

// MediaAsset is an image found in the workspace media directory.
type MediaAsset struct {
	LocalPath string
	RemoteKey string
	Converted bool
}

// HTMLResult is persisted onto the record after an HTML export.
type HTMLResult struct {
	HTML   string
	Images []string
}

// PDFResult is persisted onto the record after a PDF export.
type PDFResult struct {
	PDFFilename string
}

// LegacyImageTargets maps image extensions browsers cannot display to the
// extension they are transcoded to.
var LegacyImageTargets = map[string]string{
	".emf":  ".svg",
	".wmf":  ".png",
	".tiff": ".webp",
	".tif":  ".webp",
}

// WebImagePath returns p with a legacy image extension replaced by its
// transcoded one. Other paths are returned unchanged.
func WebImagePath(p string) string {
	ext := filepath.Ext(p)
	target, ok := LegacyImageTargets[strings.ToLower(ext)]
	if !ok {
		return p
	}
	return strings.TrimSuffix(p, ext) + target
}
