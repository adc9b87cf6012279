package network

import (
	"context"
	"fmt"
	"net"
)

// Listen opens the TCP listener for the HTTP service. On unix systems the
// address is reusable immediately after a restart.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := reuseAddrConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}
