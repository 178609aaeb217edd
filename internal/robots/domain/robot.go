// Package domain models the last known state of a care robot.
package domain

import (
	"context"
	"time"
)

// Connectivity is the server-side view of a robot's link.
type Connectivity string

const (
	Connected    Connectivity = "CONNECTED"
	Disconnected Connectivity = "DISCONNECTED"
)

// Valid reports whether c is a known connectivity value.
func (c Connectivity) Valid() bool {
	return c == Connected || c == Disconnected
}

// Position is the robot's location on the home map.
type Position struct {
	RoomID  string  `json:"roomId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// LCDState is what the robot face display currently shows.
type LCDState struct {
	Mode       string `json:"mode"`
	Emotion    string `json:"emotion"`
	Message    string `json:"message"`
	SubMessage string `json:"subMessage"`
}

// Dispenser is the pill dispenser fill level.
type Dispenser struct {
	Remaining int `json:"remaining"`
	Capacity  int `json:"capacity"`
}

// Settings are the owner-configurable schedules. Times are HH:MM local.
type Settings struct {
	MorningMedicationTime string `json:"morningMedicationTime"`
	EveningMedicationTime string `json:"eveningMedicationTime"`
	PatrolStartTime       string `json:"patrolStartTime"`
	PatrolEndTime         string `json:"patrolEndTime"`
	Volume                int    `json:"volume"`
}

// DefaultSettings is applied to newly provisioned robots.
func DefaultSettings() Settings {
	return Settings{
		MorningMedicationTime: "08:00",
		EveningMedicationTime: "19:00",
		PatrolStartTime:       "22:00",
		PatrolEndTime:         "23:00",
		Volume:                50,
	}
}

// Robot is the aggregate root of device state.
type Robot struct {
	ID                string       `json:"id"`
	SerialNumber      string       `json:"serialNumber"`
	PairingSecret     string       `json:"-"`
	ElderID           string       `json:"elderId,omitempty"`
	BatteryLevel      int          `json:"batteryLevel"`
	IsCharging        bool         `json:"isCharging"`
	Connectivity      Connectivity `json:"connectivity"`
	LastSyncAt        *time.Time   `json:"lastSyncAt,omitempty"`
	OfflineNotifiedAt *time.Time   `json:"-"`
	Position          Position     `json:"position"`
	LCD               LCDState     `json:"lcd"`
	Dispenser         Dispenser    `json:"dispenser"`
	Settings          Settings     `json:"settings"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// SilentFor returns how long the robot has gone without syncing.
func (r Robot) SilentFor(now time.Time) time.Duration {
	if r.LastSyncAt == nil || now.Before(*r.LastSyncAt) {
		return 0
	}
	return now.Sub(*r.LastSyncAt)
}

// Repository persists robots. Update methods change only the columns they name.
type Repository interface {
	Create(ctx context.Context, robot *Robot) error
	Get(ctx context.Context, id string) (*Robot, error)
	ApplyState(ctx context.Context, id string, update StateUpdate, at time.Time) error
	UpdateSettings(ctx context.Context, id string, update SettingsUpdate, at time.Time) error
	// MarkConnected sets CONNECTED, stamps last sync and clears the offline marker.
	MarkConnected(ctx context.Context, id string, at time.Time) (Connectivity, error)
	MarkDisconnected(ctx context.Context, id string, at time.Time) (Connectivity, error)
	// ClaimOfflineNotification sets the offline marker if it is unset; true means the caller owns the alert.
	ClaimOfflineNotification(ctx context.Context, id string, at time.Time) (bool, error)
	ListSilentSince(ctx context.Context, cutoff time.Time) ([]string, error)
}
