package realtime

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/database"
)

// Handler receives decoded row change events in the order they were
// committed
type Handler func(event database.ChangeEvent)

// Listener subscribes to the Postgres NOTIFY channel that repositories
// publish row changes on and fans the decoded events out to a handler.
// Reconnects are handled by pq.Listener; a reconnect gap may drop
// events, which is why clients also poll payment status over HTTP.
type Listener struct {
	dsn     string
	handler Handler
	logger  *logrus.Logger

	pqListener *pq.Listener
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewListener creates a realtime listener for the given database DSN
func NewListener(dsn string, handler Handler, logger *logrus.Logger) *Listener {
	return &Listener{
		dsn:     dsn,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start opens the listening connection and begins dispatching events
func (l *Listener) Start() error {
	l.pqListener = pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.WithError(err).Warn("Realtime listener connection event")
		}
		if ev == pq.ListenerEventReconnected {
			l.logger.Info("Realtime listener reconnected")
		}
	})

	if err := l.pqListener.Listen(database.EventsChannel); err != nil {
		l.pqListener.Close()
		return err
	}

	go l.run()
	l.logger.WithField("channel", database.EventsChannel).Info("Realtime listener started")
	return nil
}

// Stop closes the listening connection and waits for the dispatch loop
// to drain
func (l *Listener) Stop() {
	close(l.stopCh)
	l.pqListener.Close()
	<-l.doneCh
	l.logger.Info("Realtime listener stopped")
}

func (l *Listener) run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return

		case notification := <-l.pqListener.Notify:
			// A nil notification signals a connection reset
			if notification == nil {
				continue
			}
			l.dispatch(notification.Extra)

		case <-time.After(90 * time.Second):
			// Periodic liveness check keeps long-idle connections open
			// through aggressive NAT timeouts
			go l.pqListener.Ping()
		}
	}
}

func (l *Listener) dispatch(payload string) {
	var event database.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.WithError(err).WithField("payload", payload).Warn("Dropping malformed realtime event")
		return
	}

	l.logger.WithFields(logrus.Fields{
		"table":      event.Table,
		"event_type": event.EventType,
	}).Debug("Realtime event received")

	l.handler(event)
}
