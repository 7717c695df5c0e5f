// Package clipboard copies assistant replies and dictated text to the
// system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

// Verify round-trips a probe string through the clipboard and restores the
// previous contents.
func Verify() error {
	prev, err := Read()
	if err != nil {
		return err
	}
	const probe = "mediassist-clipboard-probe"
	if err := Copy(probe); err != nil {
		return err
	}
	got, err := Read()
	_ = Copy(prev)
	if err != nil {
		return err
	}
	if got != probe {
		return errors.New("clipboard did not retain copied text")
	}
	return nil
}
