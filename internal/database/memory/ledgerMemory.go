package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/google/uuid"
)

var ErrLedgerClosed = errors.New("capacity ledger closed")

// SlotSource supplies the fixed capacity of a slot the first time it is touched.
type SlotSource interface {
	GetByID(ctx context.Context, id string) (*entity.Slot, error)
}

// BookingSink stores a booking once its seats are counted.
type BookingSink interface {
	Create(ctx context.Context, booking *entity.Booking) error
}

type ledgerOp int

const (
	opReserve ledgerOp = iota
	opRemaining
)

type ledgerRequest struct {
	op        ledgerOp
	quantity  int
	bookingID string
	// commit runs on the slot goroutine after the capacity check; the seats
	// are counted only if it succeeds.
	commit func() error
	reply  chan ledgerReply
}

type ledgerReply struct {
	remaining int
	err       error
}

type slotActor struct {
	requests chan ledgerRequest
}

// CapacityLedger runs one goroutine per slot. That goroutine is the only owner
// of the slot's reserved count, so requests for one slot are applied in the
// order its channel delivers them while other slots proceed independently.
// Counters start at zero: the ledger is paired with a store that starts empty.
type CapacityLedger struct {
	slots    SlotSource
	bookings BookingSink

	mu     sync.Mutex // guards actors only
	actors map[string]*slotActor

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ database.CapacityLedger = (*CapacityLedger)(nil)

func NewCapacityLedger(slots SlotSource, bookings BookingSink) *CapacityLedger {
	return &CapacityLedger{
		slots:    slots,
		bookings: bookings,
		actors:   make(map[string]*slotActor),
		done:     make(chan struct{}),
	}
}

func (l *CapacityLedger) Reserve(ctx context.Context, slotID string, quantity int) (*entity.Reservation, error) {
	if quantity < 1 {
		return nil, entity.NewValidationError("Quantity must be at least 1.", map[string]string{"quantity": "must be at least 1"})
	}

	return l.reserve(ctx, slotID, ledgerRequest{op: opReserve, quantity: quantity})
}

// ReserveBooking writes the booking from the slot goroutine, so no other
// request for the slot runs between the capacity check and the insert.
func (l *CapacityLedger) ReserveBooking(ctx context.Context, booking *entity.Booking) (*entity.Reservation, error) {
	if booking.Quantity < 1 {
		return nil, entity.NewValidationError("Quantity must be at least 1.", map[string]string{"quantity": "must be at least 1"})
	}

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	return l.reserve(ctx, booking.SlotID, ledgerRequest{
		op:        opReserve,
		quantity:  booking.Quantity,
		bookingID: booking.ID,
		commit:    func() error { return l.bookings.Create(ctx, booking) },
	})
}

func (l *CapacityLedger) reserve(ctx context.Context, slotID string, req ledgerRequest) (*entity.Reservation, error) {
	reply, err := l.send(ctx, slotID, req)
	if err != nil {
		return nil, err
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &entity.Reservation{SlotID: slotID, Quantity: req.quantity, RemainingAfter: reply.remaining}, nil
}

func (l *CapacityLedger) GetRemainingCapacity(ctx context.Context, slotID string) (int, error) {
	reply, err := l.send(ctx, slotID, ledgerRequest{op: opRemaining})
	if err != nil {
		return 0, err
	}
	return reply.remaining, reply.err
}

// Close stops every slot goroutine.
func (l *CapacityLedger) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *CapacityLedger) send(ctx context.Context, slotID string, req ledgerRequest) (ledgerReply, error) {
	actor, err := l.actor(ctx, slotID)
	if err != nil {
		return ledgerReply{}, err
	}

	req.reply = make(chan ledgerReply, 1)
	select {
	case actor.requests <- req:
	case <-ctx.Done():
		return ledgerReply{}, ctx.Err()
	case <-l.done:
		return ledgerReply{}, ErrLedgerClosed
	}

	// An accepted request is always answered. Not selecting on ctx here keeps a
	// committed reservation from being reported as failed.
	return <-req.reply, nil
}

func (l *CapacityLedger) actor(ctx context.Context, slotID string) (*slotActor, error) {
	l.mu.Lock()
	actor, ok := l.actors[slotID]
	l.mu.Unlock()
	if ok {
		return actor, nil
	}

	// Loaded outside the lock so a slow lookup never stalls other slots.
	slot, err := l.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if actor, ok := l.actors[slotID]; ok {
		return actor, nil
	}
	select {
	case <-l.done:
		return nil, ErrLedgerClosed
	default:
	}

	actor = &slotActor{requests: make(chan ledgerRequest)}
	l.actors[slotID] = actor
	l.wg.Add(1)
	go l.run(actor, slot.Capacity)
	return actor, nil
}

func (l *CapacityLedger) run(actor *slotActor, capacity int) {
	defer l.wg.Done()

	reserved := 0
	// ids of bookings committed on this slot; a repeat is refused before the
	// capacity check, as the primary key refuses it in Postgres
	committed := make(map[string]struct{})
	for {
		select {
		case <-l.done:
			return
		case req := <-actor.requests:
			switch req.op {
			case opReserve:
				if _, ok := committed[req.bookingID]; ok && req.bookingID != "" {
					req.reply <- ledgerReply{remaining: capacity - reserved, err: entity.ErrBookingAlreadyExists}
					continue
				}
				if reserved+req.quantity > capacity {
					req.reply <- ledgerReply{
						remaining: capacity - reserved,
						err:       &entity.CapacityError{Remaining: capacity - reserved},
					}
					continue
				}
				if req.commit != nil {
					if err := req.commit(); err != nil {
						req.reply <- ledgerReply{remaining: capacity - reserved, err: err}
						continue
					}
					committed[req.bookingID] = struct{}{}
				}
				reserved += req.quantity
				req.reply <- ledgerReply{remaining: capacity - reserved}

			case opRemaining:
				req.reply <- ledgerReply{remaining: capacity - reserved}
			}
		}
	}
}
