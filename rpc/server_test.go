// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/hdkeychain"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/rpc/jsonrpc/types"
	"github.com/ndau-spv/spvcore/wallet"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	params := chaincfg.MainNetParams()

	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("generate seed: %v", err)
	}
	kc, err := keychain.New(seed, params, 0)
	if err != nil {
		t.Fatalf("keychain.New: %v", err)
	}
	w, err := wallet.New(filepath.Join(t.TempDir(), "wallet"), params.Name, kc)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	s := NewServer(Config{
		Username:    "user",
		Password:    "pass",
		ChainParams: params,
		Wallet:      w,
		Version:     "test",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	mux.HandleFunc("/ws", s.serveWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func call(t *testing.T, ts *httptest.Server, method string, params interface{}) types.Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	req := types.Request{Jsonrpc: "1.0", ID: 1, Method: method, Params: raw}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.SetBasicAuth("user", "pass")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out types.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestGetBalanceEmptyWallet(t *testing.T) {
	_, ts := testServer(t)
	resp := call(t, ts, "getbalance", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var result types.GetBalanceResult
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ConfirmedSatoshis != 0 || result.UnconfirmedSatoshis != 0 {
		t.Fatalf("expected zero balance, got %+v", result)
	}
}

func TestGetNewAddressReturnsDistinctAddresses(t *testing.T) {
	_, ts := testServer(t)

	first := call(t, ts, "getnewaddress", nil)
	if first.Error != nil {
		t.Fatalf("unexpected error: %v", first.Error)
	}
	second := call(t, ts, "getnewaddress", nil)
	if second.Error != nil {
		t.Fatalf("unexpected error: %v", second.Error)
	}

	decode := func(r types.Response) string {
		b, _ := json.Marshal(r.Result)
		var out types.GetNewAddressResult
		json.Unmarshal(b, &out)
		return out.Address
	}
	a1, a2 := decode(first), decode(second)
	if a1 == "" || a2 == "" {
		t.Fatalf("expected non-empty addresses, got %q and %q", a1, a2)
	}
	if a1 == a2 {
		t.Fatalf("expected distinct addresses, got %q twice", a1)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	_, ts := testServer(t)
	resp := call(t, ts, "notamethod", nil)
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown method")
	}
	if resp.Error.Code != types.ErrRPCMethodNotFound {
		t.Fatalf("expected ErrRPCMethodNotFound, got %v", resp.Error.Code)
	}
}

func TestSendToAddressRejectsNonPositiveAmount(t *testing.T) {
	_, ts := testServer(t)
	resp := call(t, ts, "sendtoaddress", types.SendToAddressCmd{
		Address: "anything",
		Amount:  0,
	})
	if resp.Error == nil {
		t.Fatal("expected an error for a non-positive amount")
	}
	if resp.Error.Code != types.ErrRPCInvalidParameter {
		t.Fatalf("expected ErrRPCInvalidParameter, got %v", resp.Error.Code)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	_, ts := testServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWalletLockRequiresPriorEncrypt(t *testing.T) {
	s, ts := testServer(t)
	resp := call(t, ts, "walletlock", nil)
	if resp.Error == nil {
		t.Fatal("expected an error locking a keychain that was never encrypted")
	}
	_ = s
}
