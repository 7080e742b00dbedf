package connectivity

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Socket infers connectivity from a long-lived websocket to the remote:
// an open connection means online, a read failure means offline until the
// next successful re-dial. Re-dials back off exponentially up to a cap so
// a long outage doesn't hammer the server.
type Socket struct {
	*notifier

	url    string
	dialer *websocket.Dialer
	log    *logrus.Logger

	redialBase time.Duration
	redialCap  time.Duration
}

// NewSocket creates a Socket observer dialing the given ws:// or wss:// URL.
func NewSocket(url string, log *logrus.Logger) *Socket {
	return &Socket{
		notifier:   newNotifier(false),
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:        log,
		redialBase: time.Second,
		redialCap:  30 * time.Second,
	}
}

// Run maintains the connection until ctx is cancelled.
func (s *Socket) Run(ctx context.Context) {
	delay := s.redialBase

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.set(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.redialCap {
				delay = s.redialCap
			}
			continue
		}

		s.set(true)
		delay = s.redialBase
		s.readLoop(ctx, conn)
		s.set(false)
	}
}

// readLoop consumes frames until the connection drops. Payloads are
// discarded; only liveness matters here.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
	}
}
