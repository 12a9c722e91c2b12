// Package heads subscribes to new block (EVM) or slot (Solana) notifications
// over a websocket endpoint. Pollers use the notifications to end their sleep
// early; they never depend on them for correctness.
package heads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/vietddude/buywatch/internal/core/domain"
)

const (
	pingInterval      = 25 * time.Second
	readTimeout       = 90 * time.Second
	defaultReconnect  = 5 * time.Second
	maxReconnectDelay = 2 * time.Minute
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcMessage struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params struct {
		Result json.RawMessage `json:"result"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Subscriber keeps a websocket subscription alive and publishes the latest
// head it has seen.
type Subscriber struct {
	chain          domain.Chain
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            *slog.Logger

	heads  chan uint64
	latest atomic.Uint64
}

// NewSubscriber creates a subscriber for chain at the websocket url.
func NewSubscriber(chain domain.Chain, url string) *Subscriber {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 10 * time.Second
	return &Subscriber{
		chain:          chain,
		url:            url,
		dialer:         &d,
		reconnectDelay: defaultReconnect,
		log:            slog.Default().With("component", "heads", "chain", chain),
		heads:          make(chan uint64, 1),
	}
}

// Heads delivers new heights. Only the most recent undelivered height is kept.
func (s *Subscriber) Heads() <-chan uint64 {
	return s.heads
}

// Latest returns the highest height seen so far, 0 before the first one.
func (s *Subscriber) Latest() uint64 {
	return s.latest.Load()
}

// Run connects and reconnects until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	delay := s.reconnectDelay
	for {
		started := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		// A session that stayed up for a while resets the backoff.
		if time.Since(started) > maxReconnectDelay {
			delay = s.reconnectDelay
		}
		s.log.Warn("head subscription dropped, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (s *Subscriber) subscribeRequest() rpcRequest {
	req := rpcRequest{JSONRPC: "2.0", ID: 1}
	if s.chain.Family() == domain.FamilySolana {
		req.Method = "slotSubscribe"
	} else {
		req.Method = "eth_subscribe"
		req.Params = []any{"newHeads"}
	}
	return req
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(s.subscribeRequest()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go pingLoop(pingCtx, conn)

	s.log.Info("head subscription connected", "url", s.url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		height, err := s.parse(data)
		if err != nil {
			return err
		}
		if height > 0 {
			s.publish(height)
		}
	}
}

// parse returns the height carried by a notification, 0 for anything else.
func (s *Subscriber) parse(data []byte) (uint64, error) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("ignoring malformed message", "error", err)
		return 0, nil
	}
	if msg.Error != nil {
		return 0, fmt.Errorf("subscription rejected: %d %s", msg.Error.Code, msg.Error.Message)
	}

	switch msg.Method {
	case "eth_subscription":
		var head struct {
			Number hexutil.Uint64 `json:"number"`
		}
		if err := json.Unmarshal(msg.Params.Result, &head); err != nil {
			return 0, nil
		}
		return uint64(head.Number), nil
	case "slotNotification":
		var slot struct {
			Slot uint64 `json:"slot"`
		}
		if err := json.Unmarshal(msg.Params.Result, &slot); err != nil {
			return 0, nil
		}
		return slot.Slot, nil
	}

	if msg.ID != nil && len(msg.Result) > 0 {
		s.log.Debug("subscription confirmed", "id", string(msg.Result))
	}
	return 0, nil
}

func (s *Subscriber) publish(height uint64) {
	for {
		cur := s.latest.Load()
		if height <= cur {
			return
		}
		if s.latest.CompareAndSwap(cur, height) {
			break
		}
	}
	select {
	case s.heads <- height:
	default:
		// Replace the stale pending height.
		select {
		case <-s.heads:
		default:
		}
		select {
		case s.heads <- height:
		default:
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return
			}
		}
	}
}
