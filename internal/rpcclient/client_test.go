package rpcclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/rpcclient"
)

const testTimeout = 2 * time.Second

// nodeHandler speaks just enough bitcoind JSON-RPC for the client tests.
func nodeHandler(t *testing.T) http.HandlerFunc {
	t.Helper()

	return func(responseWriter http.ResponseWriter, request *http.Request) {
		username, password, ok := request.BasicAuth()
		if !ok || username != "bitcoin" || password != "secret" {
			responseWriter.WriteHeader(http.StatusUnauthorized)

			return
		}

		var decoded struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
			responseWriter.WriteHeader(http.StatusBadRequest)

			return
		}

		responseWriter.Header().Set("Content-Type", "application/json")

		switch decoded.Method {
		case "getblockchaininfo":
			_, _ = responseWriter.Write([]byte(
				`{"result":{"blocks":215790,"difficulty":21434395.96,"verificationprogress":0.9999},"error":null,"id":"exporter"}`,
			))
		case "getpeerinfo":
			_, _ = responseWriter.Write([]byte(
				`{"result":[{"id":1},{"id":2},{"id":3}],"error":null,"id":"exporter"}`,
			))
		case "getnetworkinfo":
			_, _ = responseWriter.Write([]byte(
				`{"result":{"connections":8},"error":null,"id":"exporter"}`,
			))
		default:
			_, _ = responseWriter.Write([]byte(
				`{"result":null,"error":{"code":-32601,"message":"Method not found"},"id":"exporter"}`,
			))
		}
	}
}

// addrOf strips the scheme from an httptest server URL, yielding host:port.
func addrOf(t *testing.T, serverURL string) string {
	t.Helper()

	return strings.TrimPrefix(serverURL, "http://")
}

func TestBlockchainInfo(t *testing.T) {
	t.Parallel()

	testServer := httptest.NewServer(nodeHandler(t))
	defer testServer.Close()

	client := rpcclient.New("bitcoin", "secret", testTimeout)

	info, err := client.BlockchainInfo(context.Background(), addrOf(t, testServer.URL))
	if err != nil {
		t.Fatalf("BlockchainInfo error: %v", err)
	}

	if info.Blocks != 215790 {
		t.Fatalf("blocks: got %d want %d", info.Blocks, 215790)
	}

	if info.Difficulty != 21434395.96 {
		t.Fatalf("difficulty: got %v want %v", info.Difficulty, 21434395.96)
	}

	if info.VerificationProgress != 0.9999 {
		t.Fatalf("verificationprogress: got %v want %v", info.VerificationProgress, 0.9999)
	}
}

func TestPeerCount(t *testing.T) {
	t.Parallel()

	testServer := httptest.NewServer(nodeHandler(t))
	defer testServer.Close()

	client := rpcclient.New("bitcoin", "secret", testTimeout)

	peers, err := client.PeerCount(context.Background(), addrOf(t, testServer.URL))
	if err != nil {
		t.Fatalf("PeerCount error: %v", err)
	}

	if peers != 3 {
		t.Fatalf("peers: got %d want %d", peers, 3)
	}
}

func TestConnectionCount(t *testing.T) {
	t.Parallel()

	testServer := httptest.NewServer(nodeHandler(t))
	defer testServer.Close()

	client := rpcclient.New("bitcoin", "secret", testTimeout)

	connections, err := client.ConnectionCount(context.Background(), addrOf(t, testServer.URL))
	if err != nil {
		t.Fatalf("ConnectionCount error: %v", err)
	}

	if connections != 8 {
		t.Fatalf("connections: got %d want %d", connections, 8)
	}
}

func TestCall_AuthFailed(t *testing.T) {
	t.Parallel()

	testServer := httptest.NewServer(nodeHandler(t))
	defer testServer.Close()

	client := rpcclient.New("bitcoin", "wrong-password", testTimeout)

	_, err := client.BlockchainInfo(context.Background(), addrOf(t, testServer.URL))
	if !errors.Is(err, rpcclient.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestCall_ProtocolError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error status",
			handler: func(responseWriter http.ResponseWriter, _ *http.Request) {
				responseWriter.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "undecodable body",
			handler: func(responseWriter http.ResponseWriter, _ *http.Request) {
				_, _ = responseWriter.Write([]byte("not json at all"))
			},
		},
		{
			name: "rpc error object",
			handler: func(responseWriter http.ResponseWriter, _ *http.Request) {
				_, _ = responseWriter.Write([]byte(
					`{"result":null,"error":{"code":-28,"message":"Loading block index..."},"id":"exporter"}`,
				))
			},
		},
		{
			name: "null result",
			handler: func(responseWriter http.ResponseWriter, _ *http.Request) {
				_, _ = responseWriter.Write([]byte(`{"result":null,"error":null,"id":"exporter"}`))
			},
		},
	}

	for _, testCase := range cases {
		testCase := testCase

		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			testServer := httptest.NewServer(testCase.handler)
			defer testServer.Close()

			client := rpcclient.New("bitcoin", "secret", testTimeout)

			_, err := client.Call(context.Background(), addrOf(t, testServer.URL), "getblockchaininfo", nil)
			if !errors.Is(err, rpcclient.ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}
		})
	}
}

func TestCall_Unreachable(t *testing.T) {
	t.Parallel()

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		// Grab a port that nothing listens on anymore.
		testServer := httptest.NewServer(http.NotFoundHandler())
		deadAddr := addrOf(t, testServer.URL)
		testServer.Close()

		client := rpcclient.New("bitcoin", "secret", testTimeout)

		_, err := client.Call(context.Background(), deadAddr, "getblockchaininfo", nil)
		if !errors.Is(err, rpcclient.ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		testServer := httptest.NewServer(http.HandlerFunc(
			func(responseWriter http.ResponseWriter, request *http.Request) {
				// Drain the body so the server notices the client hanging up;
				// with an unread body the request context is never canceled
				// and Close would deadlock.
				_, _ = io.Copy(io.Discard, request.Body)
				<-request.Context().Done()
			},
		))
		defer testServer.Close()

		client := rpcclient.New("bitcoin", "secret", 100*time.Millisecond)

		_, err := client.Call(context.Background(), addrOf(t, testServer.URL), "getblockchaininfo", nil)
		if !errors.Is(err, rpcclient.ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})
}
