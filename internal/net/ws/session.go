package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"hollowgrove/bot/internal/net/proto"
	"hollowgrove/bot/internal/raid"
)

const writeWait = 10 * time.Second

// Session is one connected player. Writes are serialized under the session
// mutex with a deadline, so a stalled peer can never wedge a broadcast.
type Session struct {
	UID  string
	Name string

	conn    *websocket.Conn
	limiter *rate.Limiter

	mu sync.Mutex
}

func newSession(uid, name string, conn *websocket.Conn, limit rate.Limit, burst int) *Session {
	return &Session{
		UID:     uid,
		Name:    name,
		conn:    conn,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Allow reports whether another inbound command fits the session budget.
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

// WriteJSON marshals and writes one frame under the write lock.
func (s *Session) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Board is the subscriber registry. It implements raid.Announcer by fanning
// every engine event out to the connected sessions; a failed write drops
// the session.
type Board struct {
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewBoard(log *logrus.Entry) *Board {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Board{
		log:      log.WithField("component", "board"),
		sessions: make(map[*Session]struct{}),
	}
}

func (b *Board) attach(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s] = struct{}{}
}

func (b *Board) detach(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s)
}

// Count reports the number of connected sessions.
func (b *Board) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Publish broadcasts an engine event to every session. The engine calls
// this after releasing the boss lock, so a slow peer only costs its own
// write deadline.
func (b *Board) Publish(_ context.Context, ev raid.Event) {
	msg := proto.BoardFromEvent(ev)

	b.mu.Lock()
	targets := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.WriteJSON(msg); err != nil {
			b.log.WithError(err).WithField("user", s.UID).Debug("dropping session on failed broadcast")
			b.detach(s)
			s.Close()
		}
	}
}
