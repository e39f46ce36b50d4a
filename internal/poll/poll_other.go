//go:build !linux

package poll

import (
	"net/netip"
	"time"
)

// Poller is unavailable on this platform.
type Poller struct{}

func NewPoller() (*Poller, error) {
	return nil, ErrUnsupported
}

func (p *Poller) Add(fd int, read, write bool) error {
	return ErrUnsupported
}

func (p *Poller) Modify(fd int, read, write bool) error {
	return ErrUnsupported
}

func (p *Poller) Remove(fd int) error {
	return ErrUnsupported
}

func (p *Poller) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	return dst, ErrUnsupported
}

func (p *Poller) Wake() error {
	return ErrUnsupported
}

func (p *Poller) Close() error {
	return nil
}

// Socket is unavailable on this platform.
type Socket struct{}

func Connect(addr netip.AddrPort) (*Socket, error) {
	return nil, ErrUnsupported
}

func (s *Socket) Fd() int {
	return -1
}

func (s *Socket) Connected() (bool, error) {
	return false, ErrUnsupported
}

func (s *Socket) Read(p []byte) (int, error) {
	return 0, ErrUnsupported
}

func (s *Socket) Write(p []byte) (int, error) {
	return 0, ErrUnsupported
}

func (s *Socket) Close() error {
	return nil
}
