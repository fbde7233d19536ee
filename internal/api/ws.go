package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/el-gregus/skr-swap/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams signal and swap lifecycle events to dashboard clients.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade")
		return
	}
	defer conn.Close()

	if s.bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged, stop := subscribeAll(s.bus, 100)
	defer stop()

	for msg := range merged {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// subscribeAll fans every published event into one channel for a single
// websocket writer.
func subscribeAll(bus *events.Bus, buffer int) (<-chan events.Envelope, func()) {
	merged := make(chan events.Envelope, buffer)
	var wg sync.WaitGroup
	unsubs := make([]func(), 0, len(events.All))

	for _, e := range events.All {
		ch, unsub := bus.Subscribe(e, buffer)
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func(ch <-chan events.Envelope) {
			defer wg.Done()
			for msg := range ch {
				merged <- msg
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	stop := func() {
		for _, unsub := range unsubs {
			unsub()
		}
		// Drain so forwarders blocked on merged can exit.
		go func() {
			for range merged {
			}
		}()
	}
	return merged, stop
}
