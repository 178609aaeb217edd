package notify

import (
	"context"
	"time"

	care "carebot-cloud/internal/care/domain"
	robots "carebot-cloud/internal/robots/domain"
)

// Notifier is the outbound side-effect sink for guardian alerts.
type Notifier interface {
	StatusChanged(ctx context.Context, robot robots.Robot) error
	Offline(ctx context.Context, robot robots.Robot, offlineFor time.Duration) error
	MedicationDeferred(ctx context.Context, elder care.Elder, medicationName string) error
	Emergency(ctx context.Context, elder care.Elder, robot robots.Robot, location string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) StatusChanged(context.Context, robots.Robot) error { return nil }

func (Nop) Offline(context.Context, robots.Robot, time.Duration) error { return nil }

func (Nop) MedicationDeferred(context.Context, care.Elder, string) error { return nil }

func (Nop) Emergency(context.Context, care.Elder, robots.Robot, string) error { return nil }

// Recorder keeps notifications in memory. Intended for tests and dev mode.
type Recorder struct {
	Calls []Call
}

// Call is one recorded notification.
type Call struct {
	Type           EventType
	RobotID        string
	ElderID        string
	OfflineFor     time.Duration
	MedicationName string
	Location       string
}

func (r *Recorder) StatusChanged(_ context.Context, robot robots.Robot) error {
	r.Calls = append(r.Calls, Call{Type: EventStatusChanged, RobotID: robot.ID, ElderID: robot.ElderID})
	return nil
}

func (r *Recorder) Offline(_ context.Context, robot robots.Robot, offlineFor time.Duration) error {
	r.Calls = append(r.Calls, Call{Type: EventOffline, RobotID: robot.ID, ElderID: robot.ElderID, OfflineFor: offlineFor})
	return nil
}

func (r *Recorder) MedicationDeferred(_ context.Context, elder care.Elder, medicationName string) error {
	r.Calls = append(r.Calls, Call{Type: EventMedicationDeferred, ElderID: elder.ID, MedicationName: medicationName})
	return nil
}

func (r *Recorder) Emergency(_ context.Context, elder care.Elder, robot robots.Robot, location string) error {
	r.Calls = append(r.Calls, Call{Type: EventEmergency, ElderID: elder.ID, RobotID: robot.ID, Location: location})
	return nil
}

// Count returns how many calls of type t were recorded.
func (r *Recorder) Count(t EventType) int {
	n := 0
	for _, c := range r.Calls {
		if c.Type == t {
			n++
		}
	}
	return n
}
