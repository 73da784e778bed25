package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// flakyBookings fails Create with queued errors before delegating.
type flakyBookings struct {
	database.BookingRepository

	mu     sync.Mutex
	errs   []error
	always error
	calls  int

	// missKeyLookups hides stored idempotency keys from the first lookups
	missKeyLookups int
}

func (r *flakyBookings) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Booking, error) {
	r.mu.Lock()
	if r.missKeyLookups > 0 {
		r.missKeyLookups--
		r.mu.Unlock()
		return nil, entity.ErrBookingNotFound
	}
	r.mu.Unlock()
	return r.BookingRepository.GetByIdempotencyKey(ctx, key)
}

func (r *flakyBookings) Create(ctx context.Context, booking *entity.Booking) error {
	r.mu.Lock()
	r.calls++
	if r.always != nil {
		r.mu.Unlock()
		return r.always
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()
	return r.BookingRepository.Create(ctx, booking)
}

// lostReplyLedger lets the wrapped ledger commit, then reports a timeout for
// the first lose calls (every call when lose is negative).
type lostReplyLedger struct {
	database.CapacityLedger

	mu    sync.Mutex
	lose  int
	calls int
}

func (l *lostReplyLedger) ReserveBooking(ctx context.Context, booking *entity.Booking) (*entity.Reservation, error) {
	reservation, err := l.CapacityLedger.ReserveBooking(ctx, booking)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.lose != 0 {
		if l.lose > 0 {
			l.lose--
		}
		return nil, context.DeadlineExceeded
	}
	return reservation, err
}

type recordingTasks struct {
	mu    sync.Mutex
	tasks []*Task
	err   error
}

func (p *recordingTasks) Publish(ctx context.Context, task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return p.err
}

type recordingEvents struct {
	mu     sync.Mutex
	keys   []string
	events []interface{}
	err    error
}

func (p *recordingEvents) Publish(ctx context.Context, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}

type BookingServiceSuite struct {
	suite.Suite
	ctx     context.Context
	f       *fixture
	tasks   *recordingTasks
	events  *recordingEvents
	service BookingService
}

func (s *BookingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.f = newFixture(s.T(), 1000, 10)
	s.tasks = &recordingTasks{}
	s.events = &recordingEvents{}
	s.service = s.f.bookingService(s.T(), BookingDeps{Tasks: s.tasks, Events: s.events}, WithMaxQuantity(20))
}

func (s *BookingServiceSuite) TestCreateBooking() {
	req := s.f.request(2)
	req.PromoCode = "save10"

	result, err := s.service.CreateBooking(s.ctx, req)
	s.Require().NoError(err)
	s.False(result.Replayed)

	booking := result.Booking
	s.Regexp(refPattern, booking.BookingRef)
	s.NotEmpty(booking.ID)
	s.Equal("SAVE10", booking.PromoCode)
	s.Equal(entity.PriceBreakdown{Subtotal: 2000, Discount: 200, Tax: 90, Total: 1890}, booking.Price())
	s.Equal(8, s.f.remaining(s.T(), s.f.slot.ID))

	stored, err := s.service.GetBookingByRef(s.ctx, booking.BookingRef)
	s.Require().NoError(err)
	s.Equal(booking.ID, stored.ID)

	s.Require().Len(s.tasks.tasks, 1)
	s.Equal(TaskTypeBookingConfirmed, s.tasks.tasks[0].Type)
	s.Equal(booking.BookingRef, s.tasks.tasks[0].Data["booking_ref"])
	s.Equal([]string{booking.BookingRef}, s.events.keys)
}

func (s *BookingServiceSuite) TestCreateBookingValidation() {
	tests := []struct {
		name    string
		mutate  func(*CreateBookingRequest)
		message string
		field   string
	}{
		{name: "missing name", mutate: func(r *CreateBookingRequest) { r.UserName = "  " }, message: msgAllFieldsRequired, field: "userName"},
		{name: "missing slot", mutate: func(r *CreateBookingRequest) { r.SlotID = "" }, message: msgAllFieldsRequired, field: "slotId"},
		{name: "zero quantity", mutate: func(r *CreateBookingRequest) { r.Quantity = 0 }, message: msgAllFieldsRequired, field: "quantity"},
		{name: "negative quantity", mutate: func(r *CreateBookingRequest) { r.Quantity = -1 }, field: "quantity"},
		{name: "bad email", mutate: func(r *CreateBookingRequest) { r.UserEmail = "not-an-email" }, field: "userEmail"},
		{name: "too many", mutate: func(r *CreateBookingRequest) { r.Quantity = 21 }, field: "quantity"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := s.f.request(1)
			tt.mutate(req)

			_, err := s.service.CreateBooking(s.ctx, req)
			var verr *entity.ValidationError
			s.Require().ErrorAs(err, &verr)
			if tt.message != "" {
				s.Equal(tt.message, verr.Message)
			}
			s.Contains(verr.Fields, tt.field)
		})
	}
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestCreateBookingNotFound() {
	req := s.f.request(1)
	req.ExperienceID = "missing"
	_, err := s.service.CreateBooking(s.ctx, req)
	s.ErrorIs(err, entity.ErrExperienceNotFound)

	req = s.f.request(1)
	req.SlotID = "missing"
	_, err = s.service.CreateBooking(s.ctx, req)
	s.ErrorIs(err, entity.ErrSlotNotFound)
}

func (s *BookingServiceSuite) TestCreateBookingSlotOfAnotherExperience() {
	other := &entity.Experience{Name: "Nandi Hills Sunrise", Price: 899}
	s.Require().NoError(s.f.experiences.Create(s.ctx, other))
	otherSlot := s.f.addSlot(s.T(), other.ID, time.Now().Add(time.Hour), 10)

	req := s.f.request(1)
	req.SlotID = otherSlot.ID
	_, err := s.service.CreateBooking(s.ctx, req)
	s.ErrorIs(err, entity.ErrSlotNotFound)
	s.Equal(10, s.f.remaining(s.T(), otherSlot.ID))
}

func (s *BookingServiceSuite) TestCreateBookingPastSlot() {
	service := s.f.bookingService(s.T(), BookingDeps{}, WithClock(func() time.Time {
		return time.Now().Add(72 * time.Hour)
	}))

	_, err := service.CreateBooking(s.ctx, s.f.request(1))
	s.ErrorIs(err, entity.ErrValidation)
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestCreateBookingCapacityExceeded() {
	_, err := s.service.CreateBooking(s.ctx, s.f.request(8))
	s.Require().NoError(err)

	_, err = s.service.CreateBooking(s.ctx, s.f.request(3))
	var capErr *entity.CapacityError
	s.Require().ErrorAs(err, &capErr)
	s.Equal(2, capErr.Remaining)
	s.ErrorIs(err, entity.ErrCapacityExceeded)
	s.Equal(2, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestCreateBookingInvalidPromoKeepsCapacity() {
	req := s.f.request(2)
	req.PromoCode = "BOGUS"

	_, err := s.service.CreateBooking(s.ctx, req)
	s.ErrorIs(err, entity.ErrPromoNotFound)
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))
	s.Empty(s.tasks.tasks)
}

func (s *BookingServiceSuite) TestIdempotentReplay() {
	req := s.f.request(3)
	req.IdempotencyKey = "key-1"

	first, err := s.service.CreateBooking(s.ctx, req)
	s.Require().NoError(err)
	s.False(first.Replayed)

	again := s.f.request(3)
	again.IdempotencyKey = "key-1"
	second, err := s.service.CreateBooking(s.ctx, again)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Booking.BookingRef, second.Booking.BookingRef)
	s.Equal(7, s.f.remaining(s.T(), s.f.slot.ID))

	mismatch := s.f.request(4)
	mismatch.IdempotencyKey = "key-1"
	_, err = s.service.CreateBooking(s.ctx, mismatch)
	s.ErrorIs(err, entity.ErrIdempotencyKeyExists)
	s.Equal(7, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestConcurrentDuplicateKeyTakesNoSeats() {
	first := s.f.request(2)
	first.IdempotencyKey = "key-2"
	stored, err := s.service.CreateBooking(s.ctx, first)
	s.Require().NoError(err)
	s.Equal(8, s.f.remaining(s.T(), s.f.slot.ID))

	// the duplicate misses the replay check and loses on the unique key
	s.f.bookings.missKeyLookups = 1

	dup := s.f.request(2)
	dup.IdempotencyKey = "key-2"
	dup.UserEmail = "ASHA@example.com"
	result, err := s.service.CreateBooking(s.ctx, dup)
	s.Require().NoError(err)
	s.True(result.Replayed)
	s.Equal(stored.Booking.ID, result.Booking.ID)
	s.Equal(2, s.f.bookings.calls)
	s.Equal(8, s.f.remaining(s.T(), s.f.slot.ID))
	s.Len(s.tasks.tasks, 1)
}

func (s *BookingServiceSuite) TestRefCollisionDrawsNewRef() {
	s.f.bookings.errs = []error{entity.ErrBookingRefExists}

	result, err := s.service.CreateBooking(s.ctx, s.f.request(1))
	s.Require().NoError(err)
	s.Equal(2, s.f.bookings.calls)
	s.Regexp(refPattern, result.Booking.BookingRef)
	s.Equal(9, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestInsertFailureTakesNoSeats() {
	s.f.bookings.always = errors.New("disk full")

	_, err := s.service.CreateBooking(s.ctx, s.f.request(4))
	s.Require().Error(err)
	s.NotErrorIs(err, entity.ErrStoreUnavailable)
	s.Equal("failed to create booking: disk full", err.Error())
	s.Equal(1, s.f.bookings.calls)
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))
}

func (s *BookingServiceSuite) TestStoreUnavailable() {
	s.f.bookings.always = driver.ErrBadConn

	_, err := s.service.CreateBooking(s.ctx, s.f.request(4))
	s.ErrorIs(err, entity.ErrStoreUnavailable)
	s.Equal(testPolicy.Attempts, s.f.bookings.calls)
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))

	// labelled once, not wrapped again by the insert path
	s.True(strings.HasPrefix(err.Error(), "store unavailable: create booking: "), err.Error())
	s.NotContains(err.Error(), "failed to create booking")
}

// A commit that lands while its reply is lost is retried onto its own row.
func (s *BookingServiceSuite) TestLostCommitReplyIsRetriedWithoutDoubleCounting() {
	ledger := &lostReplyLedger{CapacityLedger: s.f.ledger, lose: 1}
	service := s.f.bookingService(s.T(), BookingDeps{Ledger: ledger})

	result, err := service.CreateBooking(s.ctx, s.f.request(3))
	s.Require().NoError(err)
	s.False(result.Replayed)
	s.Equal(2, ledger.calls)
	s.Equal(7, s.f.remaining(s.T(), s.f.slot.ID))

	booked, err := s.f.bookings.SumQuantityBySlot(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, booked[s.f.slot.ID])

	stored, err := s.f.bookings.GetByRef(s.ctx, result.Booking.BookingRef)
	s.Require().NoError(err)
	s.Equal(result.Booking.ID, stored.ID)
}

func (s *BookingServiceSuite) TestPublishFailuresDoNotFailBooking() {
	tasks := &recordingTasks{err: errors.New("queue down")}
	events := &recordingEvents{err: errors.New("broker down")}
	service := s.f.bookingService(s.T(), BookingDeps{Tasks: tasks, Events: events})

	result, err := service.CreateBooking(s.ctx, s.f.request(1))
	s.Require().NoError(err)
	s.NotEmpty(result.Booking.BookingRef)
	s.Len(tasks.tasks, 1)
	s.Len(events.events, 1)
}

func (s *BookingServiceSuite) TestGetBookingByRef() {
	result, err := s.service.CreateBooking(s.ctx, s.f.request(1))
	s.Require().NoError(err)

	found, err := s.service.GetBookingByRef(s.ctx, " "+strings.ToLower(result.Booking.BookingRef)+" ")
	s.Require().NoError(err)
	s.Equal(result.Booking.ID, found.ID)

	_, err = s.service.GetBookingByRef(s.ctx, "BKZZZZZZ")
	s.ErrorIs(err, entity.ErrBookingNotFound)

	_, err = s.service.GetBookingByRef(s.ctx, "")
	s.ErrorIs(err, entity.ErrValidation)
}

func (s *BookingServiceSuite) TestQuotePrice() {
	quote, err := s.service.QuotePrice(s.ctx, &QuoteRequest{ExperienceID: s.f.experience.ID, Quantity: 1, PromoCode: "SAVE10"})
	s.Require().NoError(err)
	s.Equal(945, quote.Price.Total)
	s.Equal("SAVE10", quote.Promo.Code)

	quote, err = s.service.QuotePrice(s.ctx, &QuoteRequest{ExperienceID: s.f.experience.ID, Quantity: 1})
	s.Require().NoError(err)
	s.Nil(quote.Promo)
	s.Equal(1050, quote.Price.Total)

	_, err = s.service.QuotePrice(s.ctx, &QuoteRequest{ExperienceID: s.f.experience.ID, Quantity: 1, PromoCode: "OLD50"})
	s.ErrorIs(err, entity.ErrPromoNotFound)
	s.Equal(10, s.f.remaining(s.T(), s.f.slot.ID))
}

func TestBookingServiceSuite(t *testing.T) {
	suite.Run(t, new(BookingServiceSuite))
}

func TestConcurrentBookingsNeverOversell(t *testing.T) {
	f := newFixture(t, 999, 5)
	service := f.bookingService(t, BookingDeps{})

	const clients = 40
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		refused   atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := service.CreateBooking(context.Background(), f.request(1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, entity.ErrCapacityExceeded):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, int32(clients-5), refused.Load())
	assert.Equal(t, 0, f.remaining(t, f.slot.ID))

	booked, err := f.bookings.SumQuantityBySlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, booked[f.slot.ID])
}

// Все ответы о коммите потеряны: клиент получает 503, но места не возвращаются
// и не продаются повторно.
func TestLostCommitRepliesNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000, 3)
	ledger := &lostReplyLedger{CapacityLedger: f.ledger, lose: -1}
	unlucky := f.bookingService(t, BookingDeps{Ledger: ledger})
	healthy := f.bookingService(t, BookingDeps{})

	req := f.request(3)
	req.IdempotencyKey = "key-lost"
	_, err := unlucky.CreateBooking(ctx, req)
	require.ErrorIs(t, err, entity.ErrStoreUnavailable)
	assert.Equal(t, testPolicy.Attempts, ledger.calls)

	for i := 0; i < 2; i++ {
		other := f.request(3)
		other.UserEmail = "ravi@example.com"
		_, err = healthy.CreateBooking(ctx, other)
		var capErr *entity.CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 0, capErr.Remaining)
	}

	booked, err := f.bookings.SumQuantityBySlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, booked[f.slot.ID])
	assert.Equal(t, 0, f.remaining(t, f.slot.ID))

	// the client's retry with the same key finds the stored booking
	again := f.request(3)
	again.IdempotencyKey = "key-lost"
	result, err := healthy.CreateBooking(ctx, again)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, 3, result.Booking.Quantity)
	assert.Equal(t, 0, f.remaining(t, f.slot.ID))
}
