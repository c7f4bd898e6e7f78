// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"net"

	"github.com/decred/go-socks/socks"
)

// NewSocksDialer returns a Dialer that connects through a SOCKS5 proxy
// (typically a local Tor daemon), so a wallet can reach peers without
// exposing the host's real address. proxyAddr is the proxy's
// host:port; username/password may be empty for an unauthenticated
// proxy. The returned Dialer does not observe ctx: canceling it does
// not interrupt a dial in progress.
func NewSocksDialer(proxyAddr, username, password string) Dialer {
	proxy := &socks.Proxy{
		Addr:     proxyAddr,
		Username: username,
		Password: password,
	}
	return func(ctx context.Context, addr string) (net.Conn, error) {
		return proxy.Dial("tcp", addr)
	}
}
