package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

// fakeWatermarkStore is an in-memory watermark.Store for tests that
// need to observe Advance calls without a database.
type fakeWatermarkStore struct {
	w *models.ProcessingWatermark
}

func (f *fakeWatermarkStore) GetWatermark(ctx context.Context, chainID string) (*models.ProcessingWatermark, error) {
	return f.w, nil
}

func (f *fakeWatermarkStore) SetWatermark(ctx context.Context, w *models.ProcessingWatermark) error {
	f.w = w
	return nil
}

// rpcStubServer answers eth_blockNumber with latestHex and eth_getLogs
// with an empty result, simulating a poll that scans a range with no
// matching Transfer logs.
func rpcStubServer(t *testing.T, latestHex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chain.RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}

		var result json.RawMessage
		switch req.Method {
		case "eth_blockNumber":
			result, _ = json.Marshal(latestHex)
		case "eth_getLogs":
			result = json.RawMessage(`[]`)
		default:
			t.Fatalf("unexpected rpc method %q", req.Method)
		}

		resp := chain.RPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode rpc response: %v", err)
		}
	}))
}

func TestPollOnceAdvancesWatermarkOnEmptyRange(t *testing.T) {
	server := rpcStubServer(t, "0xa") // latest = 10
	defer server.Close()

	pool, err := chain.NewPool(&chain.PoolConfig{Endpoints: []string{server.URL}})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	store := &fakeWatermarkStore{}
	wm := watermark.NewTracker(store, "137")
	registry := token.NewRegistry([]models.Token{
		{Address: "0xtoken0000000000000000000000000000000001", Symbol: "USDT", Decimals: 6, IsActive: true},
	})
	queue := NewQueue(100)
	log := logging.New(logging.Config{Level: "error", Format: "text", Component: "test"})

	s := NewScheduler(SchedulerConfig{MaxRetries: 1}, pool, registry, wm, queue, log)
	s.fetchCursor = 0

	s.pollOnce(context.Background())

	got, err := wm.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != 10 {
		t.Errorf("watermark after an empty poll = %d, want 10 (scanned range end, even with zero events)", got)
	}
	if s.fetchCursor != 10 {
		t.Errorf("fetchCursor = %d, want 10", s.fetchCursor)
	}
	if queue.Len() != 0 {
		t.Errorf("queue.Len() = %d, want 0 for a poll with no matching logs", queue.Len())
	}
}
