package raid

import (
	"context"
	"time"
)

// EventType enumerates the board announcements the engine can emit.
type EventType string

const (
	EventBossSpawned     EventType = "boss_spawned"
	EventShieldSpawned   EventType = "shield_spawned"
	EventShieldBroken    EventType = "shield_broken"
	EventPhaseChanged    EventType = "phase_changed"
	EventWeaknessRotated EventType = "weakness_rotated"
	EventBossDefeated    EventType = "boss_defeated"
)

// Event is one fire-and-forget board notification. Message is display-ready;
// Payload carries the structured detail for richer frontends.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Boss    string    `json:"boss,omitempty"`
	Message string    `json:"message"`
	Payload any       `json:"payload,omitempty"`
}

// Announcer receives engine events. Implementations must not block for long
// and must never propagate failure back into the engine; events are always
// dispatched after the boss lock is released.
type Announcer interface {
	Publish(ctx context.Context, ev Event)
}

// AnnouncerFunc adapts a function to the Announcer interface.
type AnnouncerFunc func(ctx context.Context, ev Event)

func (f AnnouncerFunc) Publish(ctx context.Context, ev Event) {
	if f == nil {
		return
	}
	f(ctx, ev)
}

type nopAnnouncer struct{}

func (nopAnnouncer) Publish(context.Context, Event) {}

// NopAnnouncer discards every event; the default for tests.
func NopAnnouncer() Announcer {
	return nopAnnouncer{}
}
