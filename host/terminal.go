// Package host connects the VMs to the real terminal: raw mode and a
// non-blocking keyboard.
package host

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal remembers the settings of a terminal switched to raw mode so
// they can be restored.
type Terminal struct {
	fd       uintptr
	original unix.Termios
	raw      bool
}

// EnableRawMode turns off line buffering and echo on f. When f is not a
// terminal nothing is changed and Restore is a no-op.
func EnableRawMode(f *os.File) (*Terminal, error) {
	t := &Terminal{fd: f.Fd()}
	if !term.IsTerminal(int(t.fd)) {
		return t, nil
	}

	log.Printf("enabling raw mode...")
	if err := termios.Tcgetattr(t.fd, &t.original); err != nil {
		return nil, fmt.Errorf("reading terminal attributes: %w", err)
	}
	newTermios := t.original
	newTermios.Lflag &^= unix.ICANON | unix.ECHO
	if err := termios.Tcsetattr(t.fd, termios.TCSANOW, &newTermios); err != nil {
		return nil, fmt.Errorf("enabling raw mode: %w", err)
	}
	t.raw = true
	return t, nil
}

// Restore puts the terminal back the way EnableRawMode found it.
func (t *Terminal) Restore() error {
	if t == nil || !t.raw {
		return nil
	}
	log.Printf("disabling raw mode...")
	if err := termios.Tcsetattr(t.fd, termios.TCSANOW, &t.original); err != nil {
		return fmt.Errorf("restoring terminal: %w", err)
	}
	t.raw = false
	return nil
}
