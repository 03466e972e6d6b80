// Package platform wraps the few OS integrations the backend needs.
package platform

import (
	"errors"
	"runtime"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	imgclip "golang.design/x/clipboard"
)

var ErrClipboardUnavailable = errors.New("system clipboard is unavailable")

// ID returns the platform identifier reported to the UI shell.
func ID() string {
	return idFor(runtime.GOOS)
}

func idFor(goos string) string {
	switch goos {
	case "windows":
		return "win32"
	default:
		return goos
	}
}

// Clipboard writes text or PNG images to the system clipboard.
type Clipboard interface {
	WriteText(text string) error
	WriteImage(png []byte) error
}

// SystemClipboard is the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(strings.TrimSpace(text))
}

var (
	imageInit    sync.Once
	imageInitErr error
)

// WriteImage places PNG bytes on the clipboard as an image.
func (SystemClipboard) WriteImage(png []byte) error {
	imageInit.Do(func() {
		imageInitErr = imgclip.Init()
	})
	if imageInitErr != nil {
		return ErrClipboardUnavailable
	}
	imgclip.Write(imgclip.FmtImage, png)
	return nil
}
