package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), nil)
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, dir, name string, data []byte, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	c := newTestCache(t)
	base := time.Now().Add(-time.Hour)

	writeFile(t, c.Dir(), "old.png", []byte("old"), base)
	writeFile(t, c.Dir(), "new.png", []byte("new"), base.Add(10*time.Minute))
	writeFile(t, c.Dir(), "empty.png", nil, base.Add(20*time.Minute))
	writeFile(t, c.Dir(), "notes.txt", []byte("text"), base.Add(30*time.Minute))

	items, err := c.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "media://new.png", items[0].Ref.URI)
	require.Equal(t, "media://old.png", items[1].Ref.URI)
	require.Equal(t, "image/png", items[0].Ref.MIMEType)
}

func TestStoreAndResolve(t *testing.T) {
	c := newTestCache(t)

	ref, err := c.Store([]byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, chat.MediaCache, ref.Kind())
	require.Equal(t, ".jpg", filepath.Ext(ref.CacheName()))

	data, mimeType, err := c.Resolve(ref.URI)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(data))
	require.Equal(t, "image/jpeg", mimeType)
}

func TestStoreUnknownMIMEFallsBackToDefaultExt(t *testing.T) {
	c := newTestCache(t)
	ref, err := c.Store([]byte("x"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, chat.DefaultExt, filepath.Ext(ref.CacheName()))
}

func TestStoreNamesDoNotCollide(t *testing.T) {
	c := newTestCache(t)
	fixed := time.UnixMilli(1700000000000)
	c.now = func() time.Time { return fixed }

	a, err := c.Store([]byte("a"), "image/png")
	require.NoError(t, err)
	b, err := c.Store([]byte("b"), "image/png")
	require.NoError(t, err)
	require.NotEqual(t, a.URI, b.URI)
}

func TestResolveRejectsTraversal(t *testing.T) {
	c := newTestCache(t)
	for _, ref := range []string{
		"../../etc/passwd",
		"media://../../etc/passwd",
		"media://..%2F..%2Fetc%2Fpasswd.png",
		"media://sub/dir.png",
		`media://..\secret.png`,
		"media://",
		"media://notes.txt",
	} {
		_, _, err := c.Resolve(ref)
		require.ErrorIs(t, err, ErrInvalidRef, ref)
	}
}

func TestResolveMissingIsNotFound(t *testing.T) {
	c := newTestCache(t)
	_, _, err := c.Resolve("media://nothing-here.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	c := newTestCache(t)
	a, err := c.Store([]byte("a"), "image/png")
	require.NoError(t, err)
	_, err = c.Store([]byte("b"), "video/mp4")
	require.NoError(t, err)

	require.NoError(t, c.Delete(a.URI))
	require.NoError(t, c.Delete(a.URI), "deleting twice is a no-op")

	items, err := c.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].Ref.IsVideo())

	require.NoError(t, c.DeleteAll())
	items, err = c.List()
	require.NoError(t, err)
	require.Empty(t, items)
	require.DirExists(t, c.Dir())
}

func TestInlineRoundTrip(t *testing.T) {
	ref := EncodeInline([]byte("pixels"), "image/webp")
	require.Equal(t, chat.MediaInline, ref.Kind())

	data, mimeType, err := DecodeInline(ref.URI)
	require.NoError(t, err)
	require.Equal(t, "pixels", string(data))
	require.Equal(t, "image/webp", mimeType)

	c := newTestCache(t)
	stored, err := c.StoreInline(ref)
	require.NoError(t, err)
	require.Equal(t, ".webp", filepath.Ext(stored.CacheName()))
}

func TestExportCopiesIntoDirectory(t *testing.T) {
	c := newTestCache(t)
	ref, err := c.Store([]byte("frame"), "video/mp4")
	require.NoError(t, err)

	destDir := t.TempDir()
	path, err := c.Export(ref.URI, destDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(destDir, ref.CacheName()), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "frame", string(data))

	_, err = c.Export("media://missing.png", destDir)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExportRejectsNonMediaDestinations(t *testing.T) {
	c := newTestCache(t)
	ref, err := c.Store([]byte("#!/bin/sh\necho hi\n"), "image/png")
	require.NoError(t, err)

	home := t.TempDir()
	for _, dest := range []string{
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, "run.sh"),
		"relative/picture.png",
		"",
	} {
		_, err := c.Export(ref.URI, dest)
		require.ErrorIs(t, err, ErrInvalidDestination, dest)
	}
	_, err = os.Stat(filepath.Join(home, ".bashrc"))
	require.True(t, os.IsNotExist(err))

	link := filepath.Join(home, "link.png")
	require.NoError(t, os.Symlink(filepath.Join(home, "target"), link))
	_, err = c.Export(ref.URI, link)
	require.ErrorIs(t, err, ErrInvalidDestination)

	path, err := c.Export(ref.URI, filepath.Join(home, "saved.png"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "saved.png"), path)
}
