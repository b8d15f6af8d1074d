package maps

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultQueueSize = 256

// Sink is the write side of one viewer connection.
type Sink interface {
	WriteMessage(data []byte) error
	Close() error
}

// Publisher forwards a broadcast to other service instances.
type Publisher interface {
	Publish(ctx context.Context, gameID uint, data []byte) error
}

// Session is one live viewer. It is created Connected, becomes Joined on
// Join and is Disconnected (terminal) after Leave.
type Session struct {
	id     string
	seq    uint64
	sink   Sink
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	gameID uint
	joined bool
	closed bool
}

func (s *Session) ID() string {
	return s.id
}

// Color is the viewer's cursor color, stable for the session's lifetime.
func (s *Session) Color() string {
	return ViewerColor(s.seq)
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

type Broadcaster struct {
	mu        sync.Mutex
	games     map[uint]map[*Session]struct{}
	queueSize int
	seq       atomic.Uint64
	relay     Publisher
}

func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broadcaster{
		games:     make(map[uint]map[*Session]struct{}),
		queueSize: queueSize,
	}
}

// SetRelay makes every Broadcast also reach sessions on other instances.
func (b *Broadcaster) SetRelay(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = p
}

// Connect registers a new session for sink and starts its writer.
func (b *Broadcaster) Connect(sink Sink) *Session {
	s := &Session{
		id:   uuid.NewString(),
		seq:  b.seq.Add(1) - 1,
		sink: sink,
		send: make(chan []byte, b.queueSize),
		done: make(chan struct{}),
	}
	go b.writeLoop(s)
	return s
}

// Join moves the session into gameID, leaving any game it was in.
func (b *Broadcaster) Join(gameID uint, s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	if s.joined {
		b.removeLocked(s)
	}
	group := b.games[gameID]
	if group == nil {
		group = make(map[*Session]struct{})
		b.games[gameID] = group
	}
	group[s] = struct{}{}
	s.gameID = gameID
	s.joined = true
	logrus.WithFields(logrus.Fields{"game_id": gameID, "session_id": s.id}).Debug("session joined")
}

// Leave deregisters the session and releases its connection.
func (b *Broadcaster) Leave(s *Session) {
	b.mu.Lock()
	if s.closed {
		b.mu.Unlock()
		return
	}
	b.removeLocked(s)
	s.closed = true
	b.mu.Unlock()
	b.release(s)
}

func (b *Broadcaster) removeLocked(s *Session) {
	if !s.joined {
		return
	}
	group := b.games[s.gameID]
	delete(group, s)
	if len(group) == 0 {
		delete(b.games, s.gameID)
	}
	s.joined = false
}

func (b *Broadcaster) release(s *Session) {
	s.once.Do(func() {
		close(s.done)
		if err := s.sink.Close(); err != nil {
			logrus.WithField("session_id", s.id).WithError(err).Debug("close session sink")
		}
	})
}

// GameOf reports the game the session is currently joined to.
func (b *Broadcaster) GameOf(s *Session) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.gameID, s.joined
}

// Broadcast delivers event to every session joined to gameID, the sender
// included. Delivery problems are logged and never returned; the only
// error is an event that cannot be encoded.
func (b *Broadcaster) Broadcast(ctx context.Context, gameID uint, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return invalid("payload", "cannot encode event: %v", err)
	}
	b.DeliverLocal(gameID, data)

	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()
	if relay != nil {
		if err := relay.Publish(ctx, gameID, data); err != nil {
			logrus.WithField("game_id", gameID).WithError(err).Warn("relay publish failed")
		}
	}
	return nil
}

// DeliverLocal queues data for the sessions of this instance only.
// Enqueueing happens under the lock, so every session sees one game's
// events in the order they were delivered.
func (b *Broadcaster) DeliverLocal(gameID uint, data []byte) {
	var dropped []*Session
	b.mu.Lock()
	for s := range b.games[gameID] {
		select {
		case s.send <- data:
		default:
			dropped = append(dropped, s)
		}
	}
	for _, s := range dropped {
		b.removeLocked(s)
		s.closed = true
	}
	b.mu.Unlock()

	for _, s := range dropped {
		logrus.WithFields(logrus.Fields{"game_id": gameID, "session_id": s.id}).Warn("session queue full, dropping viewer")
		b.release(s)
	}
}

// SendTo queues an event for a single session, e.g. a join acknowledgement.
func (b *Broadcaster) SendTo(s *Session, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		logrus.WithField("session_id", s.id).Warn("session queue full, dropping direct message")
	}
}

func (b *Broadcaster) writeLoop(s *Session) {
	for {
		select {
		case data := <-s.send:
			if err := s.sink.WriteMessage(data); err != nil {
				logrus.WithField("session_id", s.id).WithError(err).Warn("write to viewer failed")
				b.Leave(s)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (b *Broadcaster) Viewers(gameID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.games[gameID])
}

// ViewerCounts returns the number of joined sessions per game.
func (b *Broadcaster) ViewerCounts() map[uint]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint]int, len(b.games))
	for gameID, group := range b.games {
		out[gameID] = len(group)
	}
	return out
}
