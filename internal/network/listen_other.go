//go:build !unix

package network

import "net"

func reuseAddrConfig() net.ListenConfig {
	return net.ListenConfig{}
}
