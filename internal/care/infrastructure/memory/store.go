package memory

import (
	"context"
	"sort"
	"sync"

	care "carebot-cloud/internal/care/domain"
)

type recordKey struct {
	medicationID string
	date         string
	slot         care.DoseSlot
}

// Store keeps care records in process memory.
type Store struct {
	mu          sync.Mutex
	elders      map[string]care.Elder
	medications map[string]care.Medication
	records     map[recordKey]care.MedicationRecord
	activities  []care.Activity
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		elders:      make(map[string]care.Elder),
		medications: make(map[string]care.Medication),
		records:     make(map[recordKey]care.MedicationRecord),
	}
}

func (s *Store) CreateElder(_ context.Context, elder care.Elder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elders[elder.ID] = elder
	return nil
}

func (s *Store) CreateMedication(_ context.Context, med care.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medications[med.ID] = med
	return nil
}

func (s *Store) GetElder(_ context.Context, id string) (*care.Elder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elder, ok := s.elders[id]
	if !ok {
		return nil, nil
	}
	return &elder, nil
}

func (s *Store) FindMedication(_ context.Context, elderID, medicationID string) (*care.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	med, ok := s.medications[medicationID]
	if !ok || med.ElderID != elderID {
		return nil, nil
	}
	med.Slots = append([]care.DoseSlot(nil), med.Slots...)
	return &med, nil
}

func (s *Store) UpsertMedicationRecord(_ context.Context, record care.MedicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{record.MedicationID, record.Date, record.Slot}
	if current, ok := s.records[key]; ok && current.TakenAt.After(record.TakenAt) {
		return nil
	}
	s.records[key] = record
	return nil
}

func (s *Store) InsertActivity(_ context.Context, activity care.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

// Records returns a medication's records ordered by date then slot.
func (s *Store) Records(medicationID string) []care.MedicationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []care.MedicationRecord
	for key, record := range s.records {
		if key.medicationID == medicationID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Activities returns a copy of the activity log.
func (s *Store) Activities() []care.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]care.Activity(nil), s.activities...)
}
