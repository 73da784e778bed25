package entity

import (
	"time"
)

// DefaultSlotCapacity is used when a slot is created without an explicit capacity.
const DefaultSlotCapacity = 10

type Slot struct {
	ID           string    `json:"id" db:"id"`
	ExperienceID string    `json:"experienceId" db:"experience_id"`
	StartTime    time.Time `json:"startTime" db:"start_time"`
	Capacity     int       `json:"capacity" db:"capacity"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// SlotAvailability carries the remaining capacity derived at read time.
type SlotAvailability struct {
	Slot
	RemainingCapacity int `json:"remainingCapacity"`
}

// Reservation is the result of an accepted capacity reservation.
type Reservation struct {
	SlotID         string `json:"slotId"`
	Quantity       int    `json:"quantity"`
	RemainingAfter int    `json:"remainingAfter"`
}

// CapacityDrift describes a slot whose reserved counter disagrees with its bookings.
type CapacityDrift struct {
	SlotID   string `json:"slotId"`
	Capacity int    `json:"capacity"`
	Reserved int    `json:"reserved"`
	Booked   int    `json:"booked"`
}

// Oversold reports the dangerous direction: more seats booked than reserved.
func (d CapacityDrift) Oversold() bool {
	return d.Booked > d.Reserved
}
