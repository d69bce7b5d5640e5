package internal

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/encoding"
	"github.com/greymass/abicached/libraries/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const feedReadLimit = 64 << 20

// TraceSink consumes traces from the feed.
type TraceSink interface {
	OnTrace(ctx context.Context, trace *chain.TransactionTrace) error
	GlobalHeight() uint64
}

type ackMessage struct {
	Type   string `json:"type"`
	Traces uint64 `json:"traces"`
	Height uint64 `json:"global_sequence_height"`
}

type feedErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Feed accepts one upstream producer at a time on /traces. Each message is
// one JSON trace; reading the next message waits for OnTrace, so a stalled
// engine stalls the producer.
type Feed struct {
	ctx      context.Context
	sink     TraceSink
	ackEvery uint64

	active atomic.Bool
	total  atomic.Uint64
}

// NewFeed ties open connections to ctx; cancelling it disconnects the
// producer.
func NewFeed(ctx context.Context, sink TraceSink, ackEvery int) *Feed {
	if ackEvery <= 0 {
		ackEvery = 1
	}
	return &Feed{ctx: ctx, sink: sink, ackEvery: uint64(ackEvery)}
}

func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/traces", f.handleTraces)
	return mux
}

// Traces is the number of traces accepted over all connections.
func (f *Feed) Traces() uint64 {
	return f.total.Load()
}

func (f *Feed) handleTraces(w http.ResponseWriter, r *http.Request) {
	if f.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if !f.active.CompareAndSwap(false, true) {
		http.Error(w, "a trace producer is already connected", http.StatusConflict)
		return
	}
	defer f.active.Store(false)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Warning("Trace feed accept error: %v", err)
		return
	}
	conn.SetReadLimit(feedReadLimit)

	logger.Printf("ingest", "Trace producer connected from %s", r.RemoteAddr)
	status, reason := f.serve(conn)
	if len(reason) > 120 {
		reason = reason[:120]
	}
	conn.Close(status, reason)
	logger.Printf("ingest", "Trace producer %s disconnected: %s", r.RemoteAddr, reason)
}

func (f *Feed) serve(conn *websocket.Conn) (websocket.StatusCode, string) {
	ctx := f.ctx
	var count uint64
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return websocket.StatusGoingAway, "shutting down"
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return websocket.StatusNormalClosure, "closed by producer"
			}
			return websocket.StatusInternalError, err.Error()
		}

		var trace chain.TransactionTrace
		if err := encoding.JSONiter.Unmarshal(data, &trace); err != nil {
			logger.Warning("Invalid trace message after %d traces: %v", count, err)
			wsjson.Write(ctx, conn, feedErrorMessage{Type: "error", Message: "invalid trace: " + err.Error()})
			return websocket.StatusUnsupportedData, "invalid trace"
		}

		if err := f.sink.OnTrace(ctx, &trace); err != nil {
			if ctx.Err() != nil {
				return websocket.StatusGoingAway, "shutting down"
			}
			logger.Error("Trace %s rejected: %v", trace.ID, err)
			wsjson.Write(ctx, conn, feedErrorMessage{Type: "error", Message: err.Error()})
			return websocket.StatusInternalError, "trace processing stopped"
		}
		count++
		f.total.Add(1)

		if count%f.ackEvery == 0 {
			ack := ackMessage{Type: "ack", Traces: count, Height: f.sink.GlobalHeight()}
			if err := wsjson.Write(ctx, conn, ack); err != nil {
				return websocket.StatusInternalError, err.Error()
			}
			logger.Printf("debug-trace", "Acked %d traces at height %d", count, ack.Height)
		}
	}
}
