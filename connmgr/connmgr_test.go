// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/connmgr"
)

func pipeDialer() connmgr.Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		return client, nil
	}
}

func TestMaintainSlotConnectsAndRedialsAfterDisconnect(t *testing.T) {
	var connectCount int32

	var cm *connmgr.ConnManager
	cfg := connmgr.Config{
		MinConnections: 1,
		MaxConnections: 1,
		Dial:           pipeDialer(),
		GetAddress: func() (string, error) {
			return "peer-address", nil
		},
		OnConnect: func(req *connmgr.ConnReq, conn net.Conn) {
			atomic.AddInt32(&connectCount, 1)
			// Disconnect the first connection shortly after it opens
			// so the test can observe a redial.
			if atomic.LoadInt32(&connectCount) == 1 {
				go func() {
					time.Sleep(10 * time.Millisecond)
					cm.Disconnect(req.ID())
				}()
			}
		},
	}
	cm = connmgr.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = cm.Run(ctx)

	if atomic.LoadInt32(&connectCount) < 2 {
		t.Fatalf("expected at least 2 connect attempts (initial + redial), got %d", connectCount)
	}
}

func TestConnectNonPermanentReturnsAfterSingleAttempt(t *testing.T) {
	cm := connmgr.New(connmgr.Config{
		Dial: pipeDialer(),
	})

	if err := cm.Connect(context.Background(), "peer-address", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := cm.ConnectedCount(); got != 1 {
		t.Fatalf("ConnectedCount = %d, want 1", got)
	}
}
