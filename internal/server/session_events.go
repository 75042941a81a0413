package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hilive/hilive/internal/events"
)

// Room topics carried on the per-session stream. Events arrive tagged with
// their session ID; the stream forwards only the requested room's events.
var sessionEventTopics = []string{
	events.TopicSessionEnded,
	events.TopicSeatUpdated,
	events.TopicViewerJoined,
	events.TopicViewerLeft,
	events.TopicHostAction,
	events.TopicGiftSent,
}

func (s *Server) StreamSessionEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := s.liveroomSvc.GetSession(c.Request.Context(), sessionID); err != nil {
		AbortWithError(c, err)
		return
	}

	wanted := sessionID.String()
	merged := make(chan events.Event, 32)
	done := c.Request.Context().Done()

	var backlog []events.Event
	subs := make([]*events.Subscription, 0, len(sessionEventTopics))
	for _, topic := range sessionEventTopics {
		sub, buffered, err := s.hub.Subscribe(topic)
		if err != nil {
			continue
		}
		subs = append(subs, sub)
		for _, event := range buffered {
			if event.SessionID == wanted {
				backlog = append(backlog, event)
			}
		}
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()
	for _, sub := range subs {
		go forwardSessionEvents(sub, merged, done)
	}

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	for _, event := range backlog {
		if err := writeSessionEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-merged:
			if event.SessionID != wanted {
				continue
			}
			if err := writeSessionEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func forwardSessionEvents(sub *events.Subscription, merged chan<- events.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case merged <- event:
			case <-done:
				return
			}
		}
	}
}

func writeSessionEvent(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
