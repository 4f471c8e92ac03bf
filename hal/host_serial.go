package hal

import (
	"os"
	"sync"

	tty "github.com/mattn/go-tty"
)

type hostSerial struct {
	mu sync.Mutex
	r  *os.File
	w  *os.File
}

func (s *hostSerial) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, ErrNotImplemented
	}
	return s.r.Read(p)
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type rawSerial struct {
	mu sync.Mutex
	io *tty.TTY
}

// NewRawSerial puts the hosting terminal into raw mode so single keystrokes
// reach the UART without line buffering. The returned restore function
// must run before exit.
func NewRawSerial() (Serial, func(), error) {
	t, err := tty.Open()
	if err != nil {
		return nil, nil, err
	}
	restoreRaw, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	restore := func() {
		restoreRaw()
		t.Close()
	}
	return &rawSerial{io: t}, restore, nil
}

func (s *rawSerial) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r, err := s.io.ReadRune()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range []byte(string(r)) {
		if n >= len(p) {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (s *rawSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.io.Output().Write(p)
}
