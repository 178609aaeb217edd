package server

import (
	"context"
	"fmt"
	"time"

	care "carebot-cloud/internal/care/domain"
	"carebot-cloud/internal/config"
	robots "carebot-cloud/internal/robots/domain"
)

// CareWriter creates the care records referenced by seed data.
type CareWriter interface {
	CreateElder(ctx context.Context, elder care.Elder) error
	CreateMedication(ctx context.Context, med care.Medication) error
}

// Seed loads fixture elders, medications and robots.
func Seed(ctx context.Context, seed config.Seed, robotRepo robots.Repository, careStore CareWriter, now time.Time) error {
	for _, e := range seed.Elders {
		if err := careStore.CreateElder(ctx, care.Elder{ID: e.ID, OwnerUserID: e.OwnerUserID, Name: e.Name}); err != nil {
			return fmt.Errorf("seed elder %s: %w", e.ID, err)
		}
	}
	for _, m := range seed.Medications {
		slots := make([]care.DoseSlot, 0, len(m.Slots))
		for _, raw := range m.Slots {
			slot, ok := care.ParseDoseSlot(raw)
			if !ok {
				return fmt.Errorf("seed medication %s: unknown slot %q", m.ID, raw)
			}
			slots = append(slots, slot)
		}
		med := care.Medication{ID: m.ID, ElderID: m.ElderID, Name: m.Name, Slots: slots}
		if err := careStore.CreateMedication(ctx, med); err != nil {
			return fmt.Errorf("seed medication %s: %w", m.ID, err)
		}
	}
	for _, r := range seed.Robots {
		robot := &robots.Robot{
			ID:           r.ID,
			SerialNumber: r.SerialNumber,
			ElderID:      r.ElderID,
			Connectivity: robots.Disconnected,
			Settings:     robots.DefaultSettings(),
			CreatedAt:    now,
		}
		if err := robotRepo.Create(ctx, robot); err != nil {
			return fmt.Errorf("seed robot %s: %w", r.ID, err)
		}
	}
	return nil
}
