package service

import (
	"context"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
)

type capacityAuditor struct {
	slots    database.SlotRepository
	bookings database.BookingRepository
	ledger   database.CapacityLedger
	retry    retry.Policy
}

func NewCapacityAuditor(
	slots database.SlotRepository,
	bookings database.BookingRepository,
	ledger database.CapacityLedger,
	policy retry.Policy,
) CapacityAuditor {
	return &capacityAuditor{slots: slots, bookings: bookings, ledger: ledger, retry: policy}
}

// AuditCapacity compares every slot's reserved count with the seats its
// bookings hold and returns the slots that disagree.
func (a *capacityAuditor) AuditCapacity(ctx context.Context) ([]entity.CapacityDrift, error) {
	slots, err := storeCall(ctx, a.retry, "list slots", func(ctx context.Context) ([]*entity.Slot, error) {
		return a.slots.GetAll(ctx)
	})
	if err != nil {
		return nil, err
	}

	booked, err := storeCall(ctx, a.retry, "sum booked seats", func(ctx context.Context) (map[string]int, error) {
		return a.bookings.SumQuantityBySlot(ctx)
	})
	if err != nil {
		return nil, err
	}

	var drifts []entity.CapacityDrift
	for _, slot := range slots {
		remaining, err := storeCall(ctx, a.retry, "get remaining capacity", func(ctx context.Context) (int, error) {
			return a.ledger.GetRemainingCapacity(ctx, slot.ID)
		})
		if err != nil {
			return nil, err
		}

		reserved := slot.Capacity - remaining
		if reserved != booked[slot.ID] {
			drifts = append(drifts, entity.CapacityDrift{
				SlotID:   slot.ID,
				Capacity: slot.Capacity,
				Reserved: reserved,
				Booked:   booked[slot.ID],
			})
		}
	}
	return drifts, nil
}
