package entity

import (
	"time"
)

type Experience struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Price       int       `json:"price" db:"price"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	Location    string    `json:"location" db:"location"`
	LocationTag string    `json:"locationTag" db:"location_tag"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// ExperienceDetails is an experience with its bookable upcoming slots.
type ExperienceDetails struct {
	Experience     *Experience         `json:"experience"`
	AvailableSlots []*SlotAvailability `json:"availableSlots"`
}
