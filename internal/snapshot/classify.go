package snapshot

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category is a coarse media category used by presentation code.
type Category string

const (
	CategoryText  Category = "text"
	CategoryImage Category = "image"
	CategoryAudio Category = "audio"
	CategoryVideo Category = "video"
	CategoryOther Category = "other"
)

// DefaultContentType is used when nothing better is known.
const DefaultContentType = "application/octet-stream"

// Checked before mime.TypeByExtension so results don't depend on the host's
// mime.types file.
var knownTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".log":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".go":   "text/x-go; charset=utf-8",
	".rs":   "text/x-rust; charset=utf-8",
	".py":   "text/x-python; charset=utf-8",
	".sh":   "application/x-sh",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
}

var textApplicationTypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-sh":       true,
	"application/toml":       true,
	"application/yaml":       true,
}

func typeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

// TypeByName guesses a MIME type from the file name's extension.
func TypeByName(name string) string {
	if t := typeByExtension(name); t != "" {
		return t
	}
	return DefaultContentType
}

// DetectContentType prefers the extension and falls back to sniffing head,
// typically the first chunk of the file.
func DetectContentType(name string, head []byte) string {
	if t := typeByExtension(name); t != "" {
		return t
	}
	if len(head) == 0 {
		return DefaultContentType
	}
	return mimetype.Detect(head).String()
}

// Classify maps a file name to its coarse media category.
func Classify(name string) Category {
	return CategoryOf(TypeByName(name))
}

// CategoryOf reduces a MIME type to a coarse category.
func CategoryOf(contentType string) Category {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
		mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	}

	major, _, _ := strings.Cut(mediaType, "/")
	switch major {
	case "text":
		return CategoryText
	case "image":
		return CategoryImage
	case "audio":
		return CategoryAudio
	case "video":
		return CategoryVideo
	}
	if textApplicationTypes[mediaType] {
		return CategoryText
	}
	return CategoryOther
}
