package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghalamif/insightcap/internal/adapters/observability"
	"github.com/ghalamif/insightcap/internal/adapters/queue"
	"github.com/ghalamif/insightcap/internal/codec"
	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

type BridgeConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	Header           http.Header
	Policy           ports.QueuePolicy
}

// Bridge receives RawMessages pushed as binary websocket frames by a device
// runtime bridge. A reader goroutine buffers them in a bounded queue that
// TryNext drains without blocking.
type Bridge struct {
	conn *websocket.Conn
	q    ports.MessageQueue
	pol  ports.QueuePolicy
	obs  ports.Observability

	mu      sync.Mutex
	readErr error
	failed  bool

	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func DialBridge(ctx context.Context, cfg BridgeConfig, obs ports.Observability) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	if obs == nil {
		obs = observability.Nop{}
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   64 << 10,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ports.ErrTransport, cfg.URL, err)
	}

	b := &Bridge{
		conn: conn,
		q:    queue.NewMemQueue(cfg.Policy.MaxQueueLen),
		pol:  cfg.Policy,
		obs:  obs,
		done: make(chan struct{}),
	}
	go b.readLoop()
	obs.LogInfo("bridge_connected", ports.Field{Key: "url", Value: cfg.URL})
	return b, nil
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	for {
		mt, data, err := b.conn.ReadMessage()
		if err != nil {
			if b.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			b.mu.Lock()
			b.readErr = err
			b.mu.Unlock()
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		var m domain.RawMessage
		if err := codec.Unmarshal(data, &m); err != nil {
			b.obs.IncCounter(observability.TransportErrors, "", 1)
			b.obs.LogError("bridge_frame_invalid", err, ports.Field{Key: "bytes", Value: len(data)})
			continue
		}
		if !b.enqueueWithPolicy(&m) {
			b.obs.IncCounter(observability.SourceDropped, "", 1)
		}
		b.obs.SetGauge(observability.SourceQueueLength, "", float64(b.q.Len()))
	}
}

func (b *Bridge) enqueueWithPolicy(m *domain.RawMessage) bool {
	sleep := b.pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := b.q.Enqueue(m); ok {
			return true
		}

		switch b.pol.OnQueueFull {
		case "block":
			if b.closing.Load() {
				return false
			}
			time.Sleep(sleep)
		case "drop", "":
			b.obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", b.pol.MaxQueueLen),
				ports.Field{Key: "type", Value: m.Header.Type.String()})
			return false
		default:
			b.obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", b.pol.OnQueueFull))
			return false
		}
	}
}

// TryNext returns a buffered message if any. Once the queue is empty after the
// connection failed, the read error is reported exactly once.
func (b *Bridge) TryNext() (*domain.RawMessage, error) {
	if batch := b.q.DequeueBatch(1); len(batch) == 1 {
		return batch[0], nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil && !b.failed {
		b.failed = true
		return nil, fmt.Errorf("%w: %v", ports.ErrTransport, b.readErr)
	}
	return nil, nil
}

// Done reports whether the connection is gone and everything it delivered has
// been drained.
func (b *Bridge) Done() bool {
	select {
	case <-b.done:
	default:
		return false
	}
	if b.q.Len() > 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readErr == nil || b.failed
}

func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closing.Store(true)
		select {
		case <-b.done:
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "capture ended")
			werr := b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
				err = werr
			}
		}
		if cerr := b.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		<-b.done
	})
	return err
}

var _ ports.FiniteSource = (*Bridge)(nil)
