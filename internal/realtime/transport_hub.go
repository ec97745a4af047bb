package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

// HubTransport subscribes directly to an in-process hub.
type HubTransport struct {
	Hub    *websocket.Hub
	Buffer int
}

func (t HubTransport) Subscribe(_ context.Context, topic string, handle func(websocket.Event)) (Subscription, error) {
	if t.Hub == nil {
		return nil, ErrSubscriptionUnavailable
	}
	buffer := t.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	client := t.Hub.NewClient(buffer, topic)
	sub := &hubSubscription{hub: t.Hub, client: client, topic: topic, ending: newEnding()}

	go func() {
		for data := range client.Send {
			var ev websocket.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			handle(ev)
		}
		// Send is closed by Unregister, which is either Close or the hub
		// dropping the client.
		if sub.closing.Load() {
			sub.finish(nil)
			return
		}
		sub.finish(fmt.Errorf("%w: dropped by hub", ErrSubscriptionUnavailable))
	}()
	return sub, nil
}

type hubSubscription struct {
	hub    *websocket.Hub
	client *websocket.Client
	topic  string
	once   sync.Once

	closing atomic.Bool
	*ending
}

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		s.hub.Unsubscribe(s.client, []string{s.topic})
		s.hub.Unregister(s.client)
	})
	return nil
}
