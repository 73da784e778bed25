package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
	"golang.org/x/sync/errgroup"
)

const capacityFanOut = 8

type experienceService struct {
	experiences database.ExperienceRepository
	slots       database.SlotRepository
	ledger      database.CapacityLedger
	retry       retry.Policy
	now         func() time.Time
}

func NewExperienceService(
	experiences database.ExperienceRepository,
	slots database.SlotRepository,
	ledger database.CapacityLedger,
	policy retry.Policy,
) ExperienceService {
	return &experienceService{
		experiences: experiences,
		slots:       slots,
		ledger:      ledger,
		retry:       policy,
		now:         time.Now,
	}
}

func (s *experienceService) ListExperiences(ctx context.Context) ([]*entity.Experience, error) {
	return storeCall(ctx, s.retry, "list experiences", func(ctx context.Context) ([]*entity.Experience, error) {
		return s.experiences.GetAll(ctx)
	})
}

// GetExperience возвращает впечатление с предстоящими слотами и остатком мест
func (s *experienceService) GetExperience(ctx context.Context, id string) (*entity.ExperienceDetails, error) {
	experience, err := storeCall(ctx, s.retry, "get experience", func(ctx context.Context) (*entity.Experience, error) {
		return s.experiences.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	slots, err := storeCall(ctx, s.retry, "list upcoming slots", func(ctx context.Context) ([]*entity.Slot, error) {
		return s.slots.GetUpcomingByExperience(ctx, experience.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	available := make([]*entity.SlotAvailability, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(capacityFanOut)
	for i, slot := range slots {
		g.Go(func() error {
			remaining, err := storeCall(gctx, s.retry, "get remaining capacity", func(ctx context.Context) (int, error) {
				return s.ledger.GetRemainingCapacity(ctx, slot.ID)
			})
			if err != nil {
				return err
			}
			available[i] = &entity.SlotAvailability{Slot: *slot, RemainingCapacity: remaining}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &entity.ExperienceDetails{Experience: experience, AvailableSlots: available}, nil
}
