// Package memory keeps every repository in process memory. It backs local runs
// with store.driver=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/google/uuid"
)

type experienceRepository struct {
	mu          sync.RWMutex
	experiences map[string]entity.Experience
}

func NewExperienceRepository() database.ExperienceRepository {
	return &experienceRepository{experiences: make(map[string]entity.Experience)}
}

func (r *experienceRepository) Create(ctx context.Context, experience *entity.Experience) error {
	if experience.ID == "" {
		experience.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	experience.CreatedAt = now
	experience.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiences[experience.ID] = *experience
	return nil
}

func (r *experienceRepository) GetByID(ctx context.Context, id string) (*entity.Experience, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	experience, ok := r.experiences[id]
	if !ok {
		return nil, entity.ErrExperienceNotFound
	}
	return &experience, nil
}

func (r *experienceRepository) GetAll(ctx context.Context) ([]*entity.Experience, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	experiences := make([]*entity.Experience, 0, len(r.experiences))
	for _, experience := range r.experiences {
		experience := experience
		experiences = append(experiences, &experience)
	}
	sort.Slice(experiences, func(i, j int) bool {
		if experiences[i].CreatedAt.Equal(experiences[j].CreatedAt) {
			return experiences[i].Name < experiences[j].Name
		}
		return experiences[i].CreatedAt.Before(experiences[j].CreatedAt)
	})
	return experiences, nil
}

type slotRepository struct {
	mu    sync.RWMutex
	slots map[string]entity.Slot
}

func NewSlotRepository() database.SlotRepository {
	return &slotRepository{slots: make(map[string]entity.Slot)}
}

func (r *slotRepository) Create(ctx context.Context, slot *entity.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot.ID] = *slot
	return nil
}

func (r *slotRepository) GetByID(ctx context.Context, id string) (*entity.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.slots[id]
	if !ok {
		return nil, entity.ErrSlotNotFound
	}
	return &slot, nil
}

func (r *slotRepository) GetAll(ctx context.Context) ([]*entity.Slot, error) {
	return r.filter(func(*entity.Slot) bool { return true }), nil
}

func (r *slotRepository) GetUpcomingByExperience(ctx context.Context, experienceID string, from time.Time) ([]*entity.Slot, error) {
	return r.filter(func(s *entity.Slot) bool {
		return s.ExperienceID == experienceID && !s.StartTime.Before(from)
	}), nil
}

func (r *slotRepository) filter(keep func(*entity.Slot) bool) []*entity.Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := make([]*entity.Slot, 0)
	for _, slot := range r.slots {
		slot := slot
		if keep(&slot) {
			slots = append(slots, &slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots
}

type promoRepository struct {
	mu     sync.RWMutex
	promos map[string]entity.PromoCode
}

func NewPromoRepository() database.PromoRepository {
	return &promoRepository{promos: make(map[string]entity.PromoCode)}
}

func (r *promoRepository) GetActiveByCode(ctx context.Context, code string) (*entity.PromoCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	promo, ok := r.promos[entity.NormalizePromoCode(code)]
	if !ok || !promo.IsActive {
		return nil, entity.ErrPromoNotFound
	}
	return &promo, nil
}

func (r *promoRepository) Upsert(ctx context.Context, promo *entity.PromoCode) error {
	promo.Code = entity.NormalizePromoCode(promo.Code)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.promos[promo.Code] = *promo
	return nil
}
