package constants

import "strings"

// ImageFormats holds the allowed raster formats for page rendering.
var ImageFormats = []string{"png", "jpeg", "jpg"}

// MIMEByFormat maps a normalized image format to its MIME type.
var MIMEByFormat = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
}

// SchemaFileSuffix is the required suffix for cached and externally supplied
// schema files.
const SchemaFileSuffix = ".schema.json"

// NormalizeFormat lowercases and trims the dot from an image format or extension.
func NormalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(format, "."))
}

// MIMEForFormat resolves the MIME type for an image format.
func MIMEForFormat(format string) (string, bool) {
	mt, ok := MIMEByFormat[NormalizeFormat(format)]
	return mt, ok
}
