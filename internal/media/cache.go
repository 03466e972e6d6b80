// Package media stores user and model generated images and videos on disk and
// hands out media:// references for them.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

var (
	ErrNotFound     = errors.New("media not found")
	ErrInvalidRef   = errors.New("invalid media reference")
	ErrEmptyPayload = errors.New("media payload is empty")

	// ErrInvalidDestination rejects export targets that are relative or do
	// not name a media file.
	ErrInvalidDestination = errors.New("invalid export destination")
)

// Item is one entry of a cache listing.
type Item struct {
	Ref     chat.MediaRef `json:"ref"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"modTime"`
}

// Cache is a flat directory of media files.
type Cache struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewCache creates dir when missing.
func NewCache(dir string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Cache{dir: abs, logger: logger, now: time.Now}, nil
}

// Dir returns the managed directory.
func (c *Cache) Dir() string { return c.dir }

// Store writes data under a fresh timestamp+random filename and returns its
// cache reference.
func (c *Cache) Store(data []byte, mimeType string) (chat.MediaRef, error) {
	if len(data) == 0 {
		return chat.MediaRef{}, ErrEmptyPayload
	}
	ext := chat.ExtForMIMEType(mimeType)
	name := fmt.Sprintf("%d_%s%s", c.now().UnixMilli(), shortuuid.New()[:10], ext)

	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		c.logger.Error("media_write_failed", zap.String("name", name), zap.Error(err))
		return chat.MediaRef{}, fmt.Errorf("write media: %w", err)
	}
	c.logger.Debug("media_stored", zap.String("name", name), zap.Int("bytes", len(data)))
	return chat.NewCacheRef(name, chat.MIMETypeForExt(ext)), nil
}

// StoreInline decodes an inline data: reference and stores its bytes.
func (c *Cache) StoreInline(ref chat.MediaRef) (chat.MediaRef, error) {
	data, mimeType, err := DecodeInline(ref.URI)
	if err != nil {
		return chat.MediaRef{}, err
	}
	if ref.MIMEType != "" {
		mimeType = ref.MIMEType
	}
	return c.Store(data, mimeType)
}

// List returns allow-listed, non-empty files, newest first.
func (c *Cache) List() ([]Item, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read media dir: %w", err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !chat.AllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		items = append(items, Item{
			Ref:     chat.NewCacheRef(e.Name(), chat.MIMETypeForExt(filepath.Ext(e.Name()))),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ModTime.After(items[j].ModTime)
	})
	return items, nil
}

// Path validates ref and returns the file path inside the cache directory.
func (c *Cache) Path(ref string) (string, error) {
	name, err := sanitizeName(ref)
	if err != nil {
		return "", err
	}
	full := filepath.Join(c.dir, name)
	rel, err := filepath.Rel(c.dir, full)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidRef
	}
	return full, nil
}

// Resolve returns the bytes and MIME type behind ref.
func (c *Cache) Resolve(ref string) ([]byte, string, error) {
	full, err := c.Path(ref)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	return data, chat.MIMETypeForExt(filepath.Ext(full)), nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (c *Cache) Delete(ref string) error {
	full, err := c.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// Export copies the file behind ref to dest. dest must be absolute. When it
// is an existing directory the cached filename is kept; otherwise it must name
// a file with an allowed media extension.
func (c *Cache) Export(ref, dest string) (string, error) {
	full, err := c.Path(ref)
	if err != nil {
		return "", err
	}
	dest, err = exportTarget(strings.TrimSpace(dest), filepath.Base(full))
	if err != nil {
		return "", err
	}

	src, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	c.logger.Info("media_exported", zap.String("ref", ref), zap.String("dest", dest))
	return dest, nil
}

func exportTarget(dest, name string) (string, error) {
	if dest == "" || !filepath.IsAbs(dest) {
		return "", ErrInvalidDestination
	}
	dest = filepath.Clean(dest)
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, name), nil
	}
	if !chat.AllowedExt(filepath.Ext(dest)) {
		return "", ErrInvalidDestination
	}
	if info, err := os.Lstat(dest); err == nil && !info.Mode().IsRegular() {
		return "", ErrInvalidDestination
	}
	return dest, nil
}

// DeleteAll wipes and recreates the directory.
func (c *Cache) DeleteAll() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("wipe media dir: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("recreate media dir: %w", err)
	}
	c.logger.Info("media_wiped", zap.String("dir", c.dir))
	return nil
}

// sanitizeName requires ref to name a bare cache file. References carrying
// any directory component are rejected rather than trimmed to the last one.
func sanitizeName(ref string) (string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(ref, chat.CacheScheme))
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	raw, _, _ = strings.Cut(raw, "?")
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidRef
	}

	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(raw, `\`, "/")))
	if name != raw || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrInvalidRef
	}
	if !chat.AllowedExt(filepath.Ext(name)) {
		return "", ErrInvalidRef
	}
	return name, nil
}

// DecodeInline parses a data: URI into bytes and MIME type.
func DecodeInline(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrInvalidRef
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidRef
	}
	mimeType, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return []byte(payload), mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyPayload
	}
	return data, mimeType, nil
}

// EncodeInline builds a data: URI for data.
func EncodeInline(data []byte, mimeType string) chat.MediaRef {
	return chat.MediaRef{
		URI:      "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
	}
}
