package hub

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-hub/config"
	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	klog "github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/resolver"
	"github.com/Klingon-tech/klingnet-hub/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-hub/internal/storage"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"

	"github.com/Klingon-tech/klingnet-hub/internal/indexer"
)

// fakeNode is an in-memory upstream node: a mutable chain of blocks
// served over a mocked JSON-RPC endpoint, the same dispatch shape
// internal/rpcclient's own tests use.
type fakeNode struct {
	mu     sync.Mutex
	blocks []wireBlock // index i is height i
}

type wireBlock struct {
	header []byte
	hash   types.Hash
	raw    []byte // encoded header + tx count + transactions
}

func encodeRawBlock(header []byte, txs []*tx.Transaction) []byte {
	out := append([]byte(nil), header...)
	count := make([]byte, 4)
	binary.LittleEndian.PutUint32(count, uint32(len(txs)))
	out = append(out, count...)
	for _, t := range txs {
		out = append(out, t.SigningBytes()...)
	}
	return out
}

func (f *fakeNode) appendBlock(prev types.Hash, hash types.Hash, txs []*tx.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	header := make([]byte, codec.HeaderWireSize)
	copy(header[4:36], prev[:])
	f.blocks = append(f.blocks, wireBlock{
		header: header,
		hash:   hash,
		raw:    encodeRawBlock(header, txs),
	})
}

func (f *fakeNode) server(t *testing.T) *httptest.Server {
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

		f.mu.Lock()
		defer f.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "get_best_height":
			resp["result"] = uint32(len(f.blocks) - 1)
		case "get_block_hex_hashes":
			var params []uint32
			_ = json.Unmarshal(req.Params, &params)
			start, count := params[0], params[1]
			hashes := []string{}
			for i := start; i < start+count && int(i) < len(f.blocks); i++ {
				hashes = append(hashes, hex.EncodeToString(f.blocks[i].hash[:]))
			}
			resp["result"] = hashes
		case "get_raw_blocks":
			var params [][]string
			_ = json.Unmarshal(req.Params, &params)
			raws := []string{}
			for _, hh := range params[0] {
				for _, b := range f.blocks {
					if hex.EncodeToString(b.hash[:]) == hh {
						raws = append(raws, hex.EncodeToString(b.raw))
						break
					}
				}
			}
			resp["result"] = raws
		default:
			t.Fatalf("unexpected method %q", req.Method)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func claimTx(name string, value uint64) *tx.Transaction {
	data := claim.OutputData{Name: name, Meta: claim.Metadata{Title: "t"}}
	return &tx.Transaction{
		Version: 1,
		Outputs: []tx.Output{
			{Value: value, Script: types.Script{Type: types.ScriptTypeClaim, Data: data.Encode()}},
		},
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	st, err := store.Open(storage.NewMemory(), 100, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	idx, err := indexer.New(st, indexer.Config{ReorgLimit: 100, MaxUndoDepth: 100})
	if err != nil {
		t.Fatalf("indexer.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    &config.HubConfig{ShutdownOnSync: true},
		logger: klog.WithComponent("hub-test"),
		st:     st,
		idx:    idx,
		res:    resolver.New(st, nil, nil),
		ctx:    ctx,
		cancel: cancel,
	}
}

func TestSyncOnce_AdvancesToUpstreamTip(t *testing.T) {
	fn := &fakeNode{}
	fn.appendBlock(types.Hash{}, types.Hash{1}, []*tx.Transaction{claimTx("foo", 10)})
	fn.appendBlock(types.Hash{1}, types.Hash{2}, []*tx.Transaction{claimTx("bar", 20)})
	srv := fn.server(t)
	defer srv.Close()

	h := newTestHub(t)
	h.node = rpcclient.NewNode(srv.URL)

	if err := h.syncOnce(); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if h.idx.Height() != 1 {
		t.Fatalf("height = %d, want 1", h.idx.Height())
	}
	if h.idx.Tip() != (types.Hash{2}) {
		t.Fatalf("tip = %x, want %x", h.idx.Tip(), types.Hash{2})
	}
}

func TestSyncOnce_NoNewBlocks(t *testing.T) {
	fn := &fakeNode{}
	fn.appendBlock(types.Hash{}, types.Hash{1}, []*tx.Transaction{claimTx("foo", 10)})
	srv := fn.server(t)
	defer srv.Close()

	h := newTestHub(t)
	h.node = rpcclient.NewNode(srv.URL)

	if err := h.syncOnce(); err != nil {
		t.Fatalf("first syncOnce: %v", err)
	}
	if err := h.syncOnce(); err != nil {
		t.Fatalf("second syncOnce: %v", err)
	}
	if h.idx.Height() != 0 {
		t.Fatalf("height = %d, want 0 (no new blocks to advance to)", h.idx.Height())
	}
}

func TestSyncOnce_DetectsAndReplaysReorg(t *testing.T) {
	fn := &fakeNode{}
	fn.appendBlock(types.Hash{}, types.Hash{1}, []*tx.Transaction{claimTx("foo", 10)})
	fn.appendBlock(types.Hash{1}, types.Hash{2}, []*tx.Transaction{claimTx("bar", 20)})
	srv := fn.server(t)
	defer srv.Close()

	h := newTestHub(t)
	h.node = rpcclient.NewNode(srv.URL)
	if err := h.syncOnce(); err != nil {
		t.Fatalf("initial syncOnce: %v", err)
	}
	if h.idx.Height() != 1 {
		t.Fatalf("height after initial sync = %d, want 1", h.idx.Height())
	}

	// Upstream reorgs: replace height 1 with a divergent block.
	fn.mu.Lock()
	fn.blocks = fn.blocks[:1]
	fn.mu.Unlock()
	fn.appendBlock(types.Hash{1}, types.Hash{3}, []*tx.Transaction{claimTx("baz", 30)})

	if err := h.syncOnce(); err != nil {
		t.Fatalf("reorg syncOnce: %v", err)
	}
	if h.idx.Height() != 1 {
		t.Fatalf("height after reorg = %d, want 1", h.idx.Height())
	}
	if h.idx.Tip() != (types.Hash{3}) {
		t.Fatalf("tip after reorg = %x, want %x", h.idx.Tip(), types.Hash{3})
	}
}
