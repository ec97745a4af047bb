package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

const wsWriteWait = 5 * time.Second

// WSTransport subscribes over the server's /ws endpoint using the hub's
// subscribe/unsubscribe control messages.
type WSTransport struct {
	URL    string
	Header http.Header
	Dialer *gorillawebsocket.Dialer
	Logger zerolog.Logger
}

func (t *WSTransport) Subscribe(ctx context.Context, topic string, handle func(websocket.Event)) (Subscription, error) {
	if t == nil || t.URL == "" {
		return nil, ErrSubscriptionUnavailable
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = gorillawebsocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s", ErrSubscriptionUnavailable, t.URL, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSubscriptionUnavailable, t.URL, err)
	}

	sub := &wsSubscription{conn: conn, topic: topic, logger: t.Logger, ending: newEnding()}
	if err := sub.send("subscribe"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionUnavailable, err)
	}
	go sub.read(handle)
	return sub, nil
}

type wsSubscription struct {
	conn   *gorillawebsocket.Conn
	topic  string
	logger zerolog.Logger

	writeMu sync.Mutex
	once    sync.Once
	closing atomic.Bool

	*ending
}

func (s *wsSubscription) send(action string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(websocket.ClientMessage{Action: action, Topics: []string{s.topic}})
}

// read delivers events until the connection ends. An end not caused by
// Close is reported through Err as ErrSubscriptionUnavailable.
func (s *wsSubscription) read(handle func(websocket.Event)) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				s.finish(nil)
				return
			}
			s.logger.Warn().Err(err).Str("topic", s.topic).Msg("realtime connection lost")
			s.conn.Close()
			s.finish(fmt.Errorf("%w: connection lost: %v", ErrSubscriptionUnavailable, err))
			return
		}
		var ev websocket.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed realtime event")
			continue
		}
		if ev.Topic != s.topic {
			continue
		}
		handle(ev)
	}
}

// Close unsubscribes and sends a close frame. The reader stops on its own
// once the connection is closed.
func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.closing.Store(true)
		if sendErr := s.send("unsubscribe"); sendErr == nil {
			s.writeMu.Lock()
			s.conn.WriteControl(gorillawebsocket.CloseMessage,
				gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			s.writeMu.Unlock()
		}
		err = s.conn.Close()
	})
	return err
}
