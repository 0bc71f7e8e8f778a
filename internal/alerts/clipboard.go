package alerts

import (
	"errors"

	"github.com/atotto/clipboard"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

var errClipboardDenied = errors.New("clipboard access not permitted")

type Clipboard interface {
	// Permitted reports whether the runtime allows clipboard writes.
	Permitted() bool
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) Permitted() bool { return !clipboard.Unsupported }

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// SystemClipboard writes to the OS clipboard.
func SystemClipboard() Clipboard { return systemClipboard{} }

// CopyToClipboard copies text and reports whether it succeeded. Failures are
// logged, never returned.
func CopyToClipboard(cb Clipboard, text string) bool {
	if cb == nil {
		cb = SystemClipboard()
	}
	if !cb.Permitted() {
		log.Error("Failed to copy to clipboard: %v", errClipboardDenied)
		return false
	}
	if err := cb.WriteAll(text); err != nil {
		log.Error("Failed to copy to clipboard: %v", err)
		return false
	}
	return true
}
