package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionAborted = errors.New("device selection aborted")

// picker is the state of the interactive device list.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

type pickResult int

const (
	pickContinue pickResult = iota
	pickChosen
	pickAborted
)

// handle applies one read from a raw-mode terminal.
func (p *picker) handle(in []byte) pickResult {
	switch {
	case len(in) == 1 && (in[0] == '\r' || in[0] == '\n'):
		return pickChosen
	case len(in) == 1 && (in[0] == 3 || in[0] == 'q'): // Ctrl+C
		return pickAborted
	case len(in) == 1 && in[0] == 'j', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'B':
		p.cursor = min(p.cursor+1, len(p.devices)-1)
	case len(in) == 1 && in[0] == 'k', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'A':
		p.cursor = max(p.cursor-1, 0)
	}
	return pickContinue
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select dictation microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth: lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
}

func (p *picker) lines() int { return len(p.devices) + 2 }

// SelectDevice presents an interactive device picker on the terminal and
// returns the chosen device. A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	p.render(os.Stdout)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.handle(buf[:n]) {
		case pickChosen:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickAborted:
			fmt.Print("\r\n")
			return nil, ErrSelectionAborted
		}
		fmt.Printf("\x1b[%dA", p.lines())
		p.render(os.Stdout)
	}
}
