package hashing

import "bytes"

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8}
	gifMagic  = []byte("GIF")

	pngTrailer  = []byte("IEND")
	jpegTrailer = []byte{0xFF, 0xD9}
)

// Sanitize trims bytes appended after an image's logical terminator so that
// re-transported copies of the same image hash identically. The input is
// returned unchanged (no reallocation) when nothing needs trimming or the
// magic is unknown.
//
// PNG keeps everything through the IEND chunk (type + CRC), JPEG through the
// EOI marker, GIF through the final trailer byte.
func Sanitize(data []byte) []byte {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		if idx := bytes.LastIndex(data, pngTrailer); idx >= 0 && idx+8 < len(data) {
			return data[:idx+8]
		}
	case bytes.HasPrefix(data, jpegMagic):
		if idx := bytes.LastIndex(data, jpegTrailer); idx >= 0 && idx+2 < len(data) {
			return data[:idx+2]
		}
	case bytes.HasPrefix(data, gifMagic):
		if idx := bytes.LastIndexByte(data, 0x3B); idx >= 0 && idx+1 < len(data) {
			return data[:idx+1]
		}
	}
	return data
}
