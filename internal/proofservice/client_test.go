package proofservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
)

var testBurn = common.HexToHash("0x7a3c2f4e5d6b7a8c9d0e1f2a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e")

func TestClient_FetchExitPayload_BuildsRequestAndDecodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method: got %s", r.Method)
		}
		want := "/api/v1/amoy/exit-payload/" + testBurn.Hex()
		if r.URL.Path != want {
			t.Errorf("path: got %s want %s", r.URL.Path, want)
		}
		if got := r.URL.Query().Get("eventSignature"); got != contracts.WithdrawEventTopic().Hex() {
			t.Errorf("eventSignature: got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"0xf90102"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api/v1", "amoy", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	proof, err := c.FetchExitPayload(context.Background(), testBurn)
	if err != nil {
		t.Fatalf("FetchExitPayload: %v", err)
	}
	if proof.Hex() != "0xf90102" {
		t.Fatalf("proof: got %s", proof.Hex())
	}
}

func TestClient_FetchExitPayload_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"incorrect tx"}`, want: ErrNotCheckpointed},
		{name: "not found", status: http.StatusNotFound, want: ErrNotCheckpointed},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", want: ErrProofService},
		{name: "empty result", status: http.StatusOK, body: `{"result":""}`, want: ErrProofService},
		{name: "bad hex", status: http.StatusOK, body: `{"result":"0xzz"}`, want: ErrProofService},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: ErrProofService},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			c, err := NewClient(srv.URL, "", WithHTTPClient(srv.Client()))
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			_, err = c.FetchExitPayload(context.Background(), testBurn)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestClient_FetchExitPayload_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":"0x` + strings.Repeat("ab", 64) + `"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "amoy", WithHTTPClient(srv.Client()), WithMaxResponseBytes(32))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.FetchExitPayload(context.Background(), testBurn); !errors.Is(err, ErrProofService) {
		t.Fatalf("expected ErrProofService, got %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "ftp://proof.example", "http://"} {
		if _, err := NewClient(base, "amoy"); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("base %q: got %v", base, err)
		}
	}
	if _, err := NewClient("https://proof.example", "amoy", WithHTTPClient(nil)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil http client: got %v", err)
	}
}

func TestProof_ReturnsCopies(t *testing.T) {
	t.Parallel()

	src := []byte{1, 2, 3}
	p := NewProof(src)
	src[0] = 9
	b := p.Bytes()
	b[1] = 9
	if p.Hex() != "0x010203" {
		t.Fatalf("proof mutated: %s", p.Hex())
	}

	back, err := ParseProof(p.Hex())
	if err != nil || back.Hex() != p.Hex() {
		t.Fatalf("ParseProof: %v %s", err, back.Hex())
	}
}
