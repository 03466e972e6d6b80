package chat

import (
	"encoding/json"
	"path"
	"strings"
)

// CacheScheme prefixes references resolved by the local media cache.
const CacheScheme = "media://"

// MediaKind classifies a MediaRef by how its bytes are obtained.
type MediaKind int

const (
	MediaInvalid MediaKind = iota
	MediaInline
	MediaCache
	MediaExternal
)

func (k MediaKind) String() string {
	switch k {
	case MediaInline:
		return "inline"
	case MediaCache:
		return "cache"
	case MediaExternal:
		return "external"
	default:
		return "invalid"
	}
}

// MediaRef identifies an image or video attached to a message. The MIME type is
// stored alongside the URI so nothing has to guess it from the string later.
type MediaRef struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Kind reports which of the three reference forms the URI uses.
func (r MediaRef) Kind() MediaKind {
	switch {
	case strings.HasPrefix(r.URI, "data:"):
		return MediaInline
	case strings.HasPrefix(r.URI, CacheScheme):
		return MediaCache
	case strings.HasPrefix(r.URI, "http://"), strings.HasPrefix(r.URI, "https://"):
		return MediaExternal
	default:
		return MediaInvalid
	}
}

// CacheName returns the filename part of a cache reference.
func (r MediaRef) CacheName() string {
	return strings.TrimPrefix(r.URI, CacheScheme)
}

// IsVideo reports whether the reference carries a video MIME type.
func (r MediaRef) IsVideo() bool {
	return strings.HasPrefix(r.MIMEType, "video/")
}

// NewCacheRef builds a cache reference for a stored filename.
func NewCacheRef(name, mimeType string) MediaRef {
	return MediaRef{URI: CacheScheme + name, MIMEType: mimeType}
}

// UnmarshalJSON accepts both the object form and the bare string form written
// by older transcripts. For the latter the MIME type is derived once here.
func (r *MediaRef) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*r = MediaRef{URI: raw, MIMEType: guessLegacyMIME(raw)}
		return nil
	}

	type plain MediaRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = MediaRef(p)
	if r.MIMEType == "" {
		r.MIMEType = guessLegacyMIME(r.URI)
	}
	return nil
}

func guessLegacyMIME(uri string) string {
	if strings.HasPrefix(uri, "data:") {
		header, _, _ := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
		mimeType, _, _ := strings.Cut(header, ";")
		return mimeType
	}
	trimmed, _, _ := strings.Cut(uri, "?")
	return MIMETypeForExt(path.Ext(trimmed))
}

var extMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

var mimeExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// DefaultExt is used when a MIME type is outside the allow-list.
const DefaultExt = ".png"

// MIMETypeForExt maps an allow-listed extension to its MIME type. Unknown
// extensions map to the empty string.
func MIMETypeForExt(ext string) string {
	return extMIME[strings.ToLower(ext)]
}

// ExtForMIMEType maps an allow-listed MIME type to its extension, falling back
// to DefaultExt.
func ExtForMIMEType(mimeType string) string {
	mimeType, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	if ext, ok := mimeExt[mimeType]; ok {
		return ext
	}
	return DefaultExt
}

// AllowedExt reports whether ext belongs to the image/video allow-list.
func AllowedExt(ext string) bool {
	_, ok := extMIME[strings.ToLower(ext)]
	return ok
}
