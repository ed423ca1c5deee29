package rpcclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// rpcHandler builds an httptest server that answers exactly one JSON-RPC
// method, echoing result back as the given value (or an error if
// errMsg is non-empty).
func rpcHandler(t *testing.T, wantMethod string, result interface{}, errMsg string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int             `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != wantMethod {
			t.Fatalf("method = %q, want %q", req.Method, wantMethod)
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if errMsg != "" {
			resp["error"] = map[string]interface{}{"code": -32000, "message": errMsg}
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1 — should refuse
	var result int
	if err := client.Call("get_best_height", nil, &result); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_ServerError(t *testing.T) {
	srv := rpcHandler(t, "get_best_height", nil, "boom")
	defer srv.Close()

	client := New(srv.URL)
	var result int
	err := client.Call("get_best_height", nil, &result)
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Message != "boom" {
		t.Errorf("message = %q, want %q", rpcErr.Message, "boom")
	}
}

func TestNodeClient_GetBestHeight(t *testing.T) {
	srv := rpcHandler(t, "get_best_height", 42, "")
	defer srv.Close()

	n := NewNode(srv.URL)
	height, err := n.GetBestHeight()
	if err != nil {
		t.Fatalf("GetBestHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("height = %d, want 42", height)
	}
}

func TestNodeClient_GetBlockHexHashes(t *testing.T) {
	want := types.Hash{1, 2, 3}
	srv := rpcHandler(t, "get_block_hex_hashes", []string{want.String()}, "")
	defer srv.Close()

	n := NewNode(srv.URL)
	hashes, err := n.GetBlockHexHashes(0, 1)
	if err != nil {
		t.Fatalf("GetBlockHexHashes: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != want {
		t.Errorf("hashes = %v, want [%v]", hashes, want)
	}
}

func TestNodeClient_GetBlockHexHashes_BadHash(t *testing.T) {
	srv := rpcHandler(t, "get_block_hex_hashes", []string{"not-hex"}, "")
	defer srv.Close()

	n := NewNode(srv.URL)
	if _, err := n.GetBlockHexHashes(0, 1); err == nil {
		t.Fatal("expected decode error for malformed hash")
	}
}

func TestNodeClient_Auth_SetFromEnv(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1, "result": 7,
		})
	}))
	defer srv.Close()

	t.Setenv("NODE_RPC_USER", "alice")
	t.Setenv("NODE_RPC_PASSWORD", "secret")

	n := NewNode(srv.URL)
	if _, err := n.GetBestHeight(); err != nil {
		t.Fatalf("GetBestHeight: %v", err)
	}
	if !gotOK || gotUser != "alice" || gotPass != "secret" {
		t.Errorf("basic auth = (%q, %q, ok=%v), want (alice, secret, true)", gotUser, gotPass, gotOK)
	}
}
