// Package conn builds listeners with socket options applied.
package conn

import (
	"context"
	"net"
	"syscall"

	"github.com/database64128/tfo-go/v2"
)

// NewListenConfig returns a tfo.ListenConfig with the specified options applied.
//
// listenerFwmark is only supported on Linux. A non-zero value is ignored on other platforms.
func NewListenConfig(listenerTFO bool, listenerFwmark int) (lc tfo.ListenConfig) {
	lc.DisableTFO = !listenerTFO
	lc.Control = fwmarkControl(listenerFwmark)
	return
}

// ListenUDP listens on the UDP address with the fwmark applied.
func ListenUDP(ctx context.Context, network, address string, fwmark int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: fwmarkControl(fwmark),
	}
	pc, err := lc.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func fwmarkControl(fwmark int) func(network, address string, c syscall.RawConn) error {
	if fwmark == 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) (err error) {
		if cerr := c.Control(func(fd uintptr) {
			err = setFwmark(int(fd), fwmark)
		}); cerr != nil {
			return cerr
		}
		return
	}
}
