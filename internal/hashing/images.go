package hashing

import (
	"path/filepath"
	"strings"
)

// IsSupportedImage reports whether a file name's extension belongs to the
// image formats the perceptual hash accepts.
func IsSupportedImage(fileName string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")) {
	case "png", "jpg", "jpeg", "webp":
		return true
	}
	return false
}

// MimeForFile maps a file name to the MIME type used in multimodal LLM
// payloads. Unknown extensions fall back to PNG, which every multimodal
// endpoint accepts for data URLs.
func MimeForFile(fileName string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
