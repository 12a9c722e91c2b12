package heads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// wsServer accepts one subscription and replays msgs.
func wsServer(t *testing.T, wantMethod string, msgs ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if req.Method != wantMethod {
			t.Errorf("expected %s, got %s", wantMethod, req.Method)
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, s *Subscriber, want uint64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case h := <-s.Heads():
			if h == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for head %d, latest %d", want, s.Latest())
		}
	}
}

func TestSubscriber_EVMNewHeads(t *testing.T) {
	srv := wsServer(t, "eth_subscribe",
		`{"jsonrpc":"2.0","id":1,"result":"0xsub"}`,
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":{"number":"0x10","hash":"0xaa"}}}`,
		`not json`,
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":{"number":"0x11","hash":"0xbb"}}}`,
	)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubscriber(domain.ChainEVMMainnet, wsURL(srv))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, s, 0x11)
	if s.Latest() != 0x11 {
		t.Errorf("expected latest 17, got %d", s.Latest())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSubscriber_SolanaSlots(t *testing.T) {
	srv := wsServer(t, "slotSubscribe",
		`{"jsonrpc":"2.0","id":1,"result":7}`,
		`{"jsonrpc":"2.0","method":"slotNotification","params":{"result":{"parent":99,"root":60,"slot":100},"subscription":7}}`,
	)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubscriber(domain.ChainSolana, wsURL(srv))
	go s.Run(ctx)

	waitFor(t, s, 100)
}

func TestSubscriber_PublishKeepsLatest(t *testing.T) {
	s := NewSubscriber(domain.ChainEVMMainnet, "ws://unused")
	s.publish(5)
	s.publish(7)
	s.publish(6)

	if got := <-s.Heads(); got != 7 {
		t.Errorf("expected pending head 7, got %d", got)
	}
	select {
	case h := <-s.Heads():
		t.Errorf("unexpected extra head %d", h)
	default:
	}
	if s.Latest() != 7 {
		t.Errorf("expected latest 7, got %d", s.Latest())
	}
}

func TestSubscriber_Rejected(t *testing.T) {
	s := NewSubscriber(domain.ChainEVMMainnet, "ws://unused")
	if _, err := s.parse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)); err == nil {
		t.Error("expected error for rejected subscription")
	}
}
