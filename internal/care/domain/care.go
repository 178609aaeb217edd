// Package domain holds the elder-care records this service reads and writes
// but does not own: elders, medications, medication records and activities.
package domain

import (
	"context"
	"strings"
	"time"
)

// Elder is the person a robot serves.
type Elder struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"ownerUserId"`
	Name        string `json:"name"`
}

// DoseSlot is a fixed time-of-day bucket for medication adherence.
type DoseSlot string

const (
	SlotMorning DoseSlot = "MORNING"
	SlotNoon    DoseSlot = "NOON"
	SlotEvening DoseSlot = "EVENING"
)

// ParseDoseSlot normalises s; ok is false for unknown slots.
func ParseDoseSlot(s string) (DoseSlot, bool) {
	slot := DoseSlot(strings.ToUpper(strings.TrimSpace(s)))
	switch slot {
	case SlotMorning, SlotNoon, SlotEvening:
		return slot, true
	}
	return "", false
}

// SlotAt buckets t by its local hour in loc: [0,11) morning, [11,16) noon, [16,24) evening.
func SlotAt(t time.Time, loc *time.Location) DoseSlot {
	if loc == nil {
		loc = time.UTC
	}
	hour := t.In(loc).Hour()
	switch {
	case hour < 11:
		return SlotMorning
	case hour < 16:
		return SlotNoon
	default:
		return SlotEvening
	}
}

// Medication is a prescription with its daily schedule.
type Medication struct {
	ID      string     `json:"id"`
	ElderID string     `json:"elderId"`
	Name    string     `json:"name"`
	Slots   []DoseSlot `json:"slots"`
}

// Covers reports whether the schedule includes slot.
func (m Medication) Covers(slot DoseSlot) bool {
	for _, s := range m.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// RecordStatus is the adherence state of one dose.
type RecordStatus string

const (
	RecordTaken  RecordStatus = "TAKEN"
	RecordMissed RecordStatus = "MISSED"
)

// MedicationRecord is unique per (MedicationID, Date, Slot).
type MedicationRecord struct {
	MedicationID string
	Date         string // YYYY-MM-DD, local calendar date
	Slot         DoseSlot
	Status       RecordStatus
	TakenAt      time.Time
	Method       string
}

// ActivityKind classifies an elder activity log entry.
type ActivityKind string

const (
	ActivityWakeUp          ActivityKind = "WAKE_UP"
	ActivitySleep           ActivityKind = "SLEEP"
	ActivityPatrolComplete  ActivityKind = "PATROL_COMPLETE"
	ActivityOutDetected     ActivityKind = "OUT_DETECTED"
	ActivityReturnDetected  ActivityKind = "RETURN_DETECTED"
	ActivityEmergency       ActivityKind = "EMERGENCY"
	ActivityMedicationTaken ActivityKind = "MEDICATION_TAKEN"
)

// Activity is one entry in the elder's activity log.
type Activity struct {
	ElderID    string
	RobotID    string
	Kind       ActivityKind
	Title      string
	Location   string
	OccurredAt time.Time
}

// Store is the persistence surface of the care records.
type Store interface {
	GetElder(ctx context.Context, id string) (*Elder, error)
	FindMedication(ctx context.Context, elderID, medicationID string) (*Medication, error)
	UpsertMedicationRecord(ctx context.Context, record MedicationRecord) error
	InsertActivity(ctx context.Context, activity Activity) error
}

// FormatSlots joins slots for storage.
func FormatSlots(slots []DoseSlot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

// ParseSlots reads a stored slot list, dropping unknown values.
func ParseSlots(value string) []DoseSlot {
	var slots []DoseSlot
	for _, part := range strings.Split(value, ",") {
		if slot, ok := ParseDoseSlot(part); ok {
			slots = append(slots, slot)
		}
	}
	return slots
}
