package host

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aryanA101a/lulu/vm"
)

const pollInterval = 5 * time.Millisecond

// Keyboard reads keys from an input stream on its own goroutine and hands
// them out one at a time through PollKey, which never blocks.
type Keyboard struct {
	r    io.Reader
	fd   int
	keys chan byte
	stop chan struct{}
	once sync.Once
}

var _ vm.KeySource = (*Keyboard)(nil)

// NewKeyboard starts reading r. When r is an *os.File the reader waits for
// input with poll(2) so Close can stop it between keys.
func NewKeyboard(r io.Reader) *Keyboard {
	k := &Keyboard{
		r:    r,
		fd:   -1,
		keys: make(chan byte, 64),
		stop: make(chan struct{}),
	}
	if f, ok := r.(*os.File); ok {
		k.fd = int(f.Fd())
	}
	go k.pollKeyboard()
	return k
}

func (k *Keyboard) pollKeyboard() {
	defer close(k.keys)
	buf := make([]byte, 1)
	for {
		select {
		case <-k.stop:
			return
		default:
		}

		if k.fd >= 0 {
			ready, err := readable(k.fd, pollInterval)
			if err != nil {
				return
			}
			if !ready {
				continue
			}
		}

		n, err := k.r.Read(buf)
		if n > 0 {
			select {
			case k.keys <- buf[0]:
			case <-k.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// PollKey returns the next key typed, if there is one.
func (k *Keyboard) PollKey() (vm.Word, bool) {
	select {
	case b, ok := <-k.keys:
		if !ok {
			return 0, false
		}
		return vm.Word(b), true
	default:
		return 0, false
	}
}

// Close stops the reader goroutine once its current read returns.
func (k *Keyboard) Close() {
	k.once.Do(func() { close(k.stop) })
}

func readable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
