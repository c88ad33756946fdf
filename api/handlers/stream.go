package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/types"
	"github.com/bgunyel/ragnar/workflow"
)

// Stream message types.
const (
	StreamTypeEvent  = "event"
	StreamTypeResult = "result"
	StreamTypeError  = "error"
)

// StreamEvent is a workflow.Event with its error flattened to text.
type StreamEvent struct {
	workflow.Event
	Error string `json:"error,omitempty"`
}

// StreamMessage is one websocket frame sent to the client.
type StreamMessage struct {
	Type   string        `json:"type"`
	Event  *StreamEvent  `json:"event,omitempty"`
	Result *ChatResponse `json:"result,omitempty"`
	Error  *ErrorInfo    `json:"error,omitempty"`
}

// =============================================================================
// Event hub
// =============================================================================

// EventHub fans engine events out to websocket subscribers. Install it as
// the engines' observer. Slow subscribers lose events rather than stall a
// run.
type EventHub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewEventHub creates a hub whose subscribers buffer up to buffer messages.
func NewEventHub(buffer int, logger *zap.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// Observe satisfies workflow.Observer.
func (h *EventHub) Observe(ev workflow.Event) {
	msg := StreamMessage{Type: StreamTypeEvent, Event: &StreamEvent{Event: ev}}
	if ev.Err != nil {
		msg.Event.Error = ev.Err.Error()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.matches(ev.RunID) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts events lost to full subscriber buffers.
func (h *EventHub) Dropped() int64 { return h.dropped.Load() }

// Subscribe registers a subscriber following runIDs. With all set it
// receives every event.
func (h *EventHub) Subscribe(all bool, runIDs ...string) *Subscription {
	sub := &Subscription{
		hub:  h,
		ch:   make(chan StreamMessage, h.buffer),
		all:  all,
		runs: make(map[string]struct{}, len(runIDs)),
	}
	for _, id := range runIDs {
		sub.Follow(id)
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Subscription is one subscriber of an EventHub.
type Subscription struct {
	hub *EventHub
	ch  chan StreamMessage
	all bool

	mu   sync.RWMutex
	runs map[string]struct{}
}

// C delivers the subscribed messages.
func (s *Subscription) C() <-chan StreamMessage { return s.ch }

// Follow adds runID. Agent turns run as "<runID>:<turn>", so following a
// conversation ID follows all its turns.
func (s *Subscription) Follow(runID string) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	s.runs[runID] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscription) matches(runID string) bool {
	if s.all {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; ok {
		return true
	}
	if i := strings.LastIndexByte(runID, ':'); i > 0 {
		_, ok := s.runs[runID[:i]]
		return ok
	}
	return false
}

// deliver queues msg, waiting for room until ctx ends.
func (s *Subscription) deliver(ctx context.Context, msg StreamMessage) bool {
	select {
	case s.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

// =============================================================================
// Websocket handler
// =============================================================================

// StreamHandler serves GET /api/v1/agent/ws. Clients send ChatRequest
// frames and receive the engine events of their runs followed by a result
// or error frame. ?run_id= follows existing runs, ?all=true follows every
// run.
type StreamHandler struct {
	hub          *EventHub
	agent        Conversational
	origins      []string
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewStreamHandler creates a StreamHandler. agent may be nil for a
// read-only event stream. origins are accepted cross-origin host patterns.
func NewStreamHandler(hub *EventHub, agent Conversational, origins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		hub:          hub,
		agent:        agent,
		origins:      origins,
		writeTimeout: 10 * time.Second,
		logger:       logger.With(zap.String("handler", "stream")),
	}
}

// HandleWS upgrades the connection and streams until either side closes.
func (h *StreamHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	query := r.URL.Query()
	sub := h.hub.Subscribe(query.Get("all") == "true", query["run_id"]...)
	defer sub.Close()

	var runs sync.WaitGroup
	go h.readLoop(ctx, cancel, conn, sub, &runs)

	for {
		select {
		case <-ctx.Done():
			runs.Wait()
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-sub.C():
			wctx, wcancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				cancel()
			}
		}
	}
}

func (h *StreamHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *Subscription, runs *sync.WaitGroup) {
	defer cancel()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		if h.agent == nil {
			sub.deliver(ctx, errorMessage(&ErrorInfo{Code: string(types.ErrInvalidRequest), Message: "this stream is read-only"}))
			continue
		}
		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			sub.deliver(ctx, errorMessage(&ErrorInfo{Code: string(types.ErrInvalidRequest), Message: "query is required"}))
			continue
		}
		if req.RunID == "" {
			req.RunID = uuid.NewString()
		}
		sub.Follow(req.RunID)

		runs.Add(1)
		go func(req ChatRequest) {
			defer runs.Done()
			res, err := h.agent.Run(ctx, req.RunID, req.Query)
			if err != nil {
				info := runErrorInfo(err)
				if info.RunID == "" {
					info.RunID = req.RunID
				}
				sub.deliver(ctx, errorMessage(info))
				return
			}
			resp := newChatResponse(res)
			sub.deliver(ctx, StreamMessage{Type: StreamTypeResult, Result: &resp})
		}(req)
	}
}

func errorMessage(info *ErrorInfo) StreamMessage {
	return StreamMessage{Type: StreamTypeError, Error: info}
}
