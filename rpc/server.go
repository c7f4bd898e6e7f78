// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpc implements the wallet's local control surface: a
// JSON-RPC 1.0 style HTTP endpoint for request/response commands and a
// websocket stream for Wallet notifications, adapted from the
// teacher's rpcclient/legacyrpc handler-map convention.
package rpc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/certgen"
	"github.com/gorilla/websocket"

	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/peergroup"
	"github.com/ndau-spv/spvcore/rpc/jsonrpc/types"
	"github.com/ndau-spv/spvcore/wallet"
)

// handler answers one parsed command, given its still-raw JSON
// parameters. It is the hand-rolled analogue of the teacher's
// func(*Server, interface{}) (interface{}, error) handler map, without
// the dcrjson reflection-based command registry behind it.
type handler func(s *Server, params json.RawMessage) (interface{}, error)

// Config parameterizes a Server.
type Config struct {
	Listen      string
	Username    string
	Password    string
	CertFile    string
	KeyFile     string
	ChainParams *chaincfg.Params

	Wallet      *wallet.Wallet
	PeerGroup   *peergroup.PeerGroup
	Broadcaster *peergroup.TransactionBroadcaster

	// Version identifies this build in getinfo replies.
	Version string
}

// Server is the control RPC's HTTP + websocket listener.
type Server struct {
	cfg     Config
	authsha [sha256.Size]byte

	httpServer *http.Server
	upgrader   websocket.Upgrader

	wsMu      sync.Mutex
	wsClients map[*websocket.Conn]bool
}

// NewServer constructs a Server from cfg but does not yet listen.
func NewServer(cfg Config) *Server {
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	s := &Server{
		cfg:       cfg,
		authsha:   sha256.Sum256([]byte("Basic " + auth)),
		wsClients: make(map[*websocket.Conn]bool),
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.cfg.Wallet.AddListener(&notifier{s: s})
	return s
}

// ensureCert loads cfg.CertFile/KeyFile, generating a self-signed pair
// via certgen if neither exists yet, following the teacher's
// first-run TLS bootstrap.
func (s *Server) ensureCert() (tls.Certificate, error) {
	if _, err := os.Stat(s.cfg.CertFile); os.IsNotExist(err) {
		log.Infof("generating new TLS certificate pair at %s", s.cfg.CertFile)
		cert, key, err := certgen.NewTLSCertPair(
			fmt.Sprintf("%s RPC", s.cfg.Version), time.Now().Add(10*365*24*time.Hour), nil)
		if err != nil {
			return tls.Certificate{}, err
		}
		if err := os.WriteFile(s.cfg.CertFile, cert, 0600); err != nil {
			return tls.Certificate{}, err
		}
		if err := os.WriteFile(s.cfg.KeyFile, key, 0600); err != nil {
			return tls.Certificate{}, err
		}
	}
	return tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
}

// Run listens on cfg.Listen until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	cert, err := s.ensureCert()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	mux.HandleFunc("/ws", s.serveWS)

	s.httpServer = &http.Server{
		Addr:      s.cfg.Listen,
		Handler:   mux,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, s.httpServer.TLSConfig)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(tlsLn) }()

	log.Infof("control RPC listening on %s", s.cfg.Listen)
	select {
	case <-ctx.Done():
		s.httpServer.Close()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// checkAuth validates the request's HTTP Basic credentials in constant
// time against the configured username/password hash.
func (s *Server) checkAuth(r *http.Request) bool {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return false
	}
	sum := sha256.Sum256([]byte(hdr))
	return subtle.ConstantTimeCompare(sum[:], s.authsha[:]) == 1
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="spvwalletd RPC"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req types.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, types.Response{Error: types.NewRPCError(types.ErrRPCParse, err.Error())})
		return
	}

	h, ok := handlers[req.Method]
	if !ok {
		writeResponse(w, types.Response{
			ID:    req.ID,
			Error: types.NewRPCError(types.ErrRPCMethodNotFound, "method not found: "+req.Method),
		})
		return
	}

	result, err := h(s, req.Params)
	resp := types.Response{Jsonrpc: "1.0", ID: req.ID}
	if err != nil {
		if rpcErr, ok := err.(*types.RPCError); ok {
			resp.Error = rpcErr
		} else {
			resp.Error = types.NewRPCError(types.ErrRPCInternal, err.Error())
		}
	} else {
		resp.Result = result
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp types.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// serveWS upgrades to a websocket notification stream: once connected,
// a client receives every subsequent OnTransaction/OnConfidenceChanged/
// OnBalanceChanged event as a JSON message until it disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(r) {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	s.wsMu.Lock()
	s.wsClients[conn] = true
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcastNotification fans out a notification to every connected
// websocket client, dropping any whose write fails (it will be pruned
// the next time serveWS's read loop notices the closed connection).
func (s *Server) broadcastNotification(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for conn := range s.wsClients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			go conn.Close()
		}
	}
}

// parseAddress decodes a Base58Check address string against the
// server's configured network.
func parseAddress(s *Server, encoded string) (*address.Address, error) {
	encoded = strings.TrimSpace(encoded)
	return address.DecodeAddress(encoded, s.cfg.ChainParams)
}

func hashFromString(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}
