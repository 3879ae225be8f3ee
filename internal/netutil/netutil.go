// Package netutil provides loopback port allocation for the protocol bridge.
package netutil

import (
	"context"
	"fmt"
	"net"
)

// Allocator hands out free loopback TCP ports. The zero value is usable; set
// Fixed to always return one specific port, or RangeFrom/RangeTo to pin
// allocation to a port range.
type Allocator struct {
	Fixed     int
	RangeFrom int
	RangeTo   int
}

// FindFreePort returns a currently-free loopback port. Without a configured
// range the kernel picks one; with a range the ports are probed in order.
func (a *Allocator) FindFreePort(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if a.Fixed > 0 {
		return a.Fixed, nil
	}

	if a.RangeFrom > 0 && a.RangeTo >= a.RangeFrom {
		return a.findInRange(ctx)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, fmt.Errorf("failed to release probe listener: %w", err)
	}

	return port, nil
}

func (a *Allocator) findInRange(ctx context.Context) (int, error) {
	for port := a.RangeFrom; port <= a.RangeTo; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		if err := listener.Close(); err != nil {
			return 0, fmt.Errorf("failed to release probe listener: %w", err)
		}
		return port, nil
	}

	return 0, fmt.Errorf("no free port in range %d-%d", a.RangeFrom, a.RangeTo)
}
