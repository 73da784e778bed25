// Package seed builds the sample catalog used by cmd/seed and by the in-memory store.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	minSlots    = 3
	maxSlots    = 6
	minDayAhead = 1
	maxDayAhead = 7
	firstHour   = 7
	lastHour    = 15
)

// weighted towards sold out and low capacity slots
var slotCapacities = []int{0, 3, 5, 10, 10, 15}

var sampleExperiences = []entity.Experience{
	{
		Name:        "Kayaking in the Mangroves",
		Description: "Curated small-group experience. Certified guide. Safety first with gear included. Helmet and Life jackets along with an expert will accompany in kayaking.",
		Price:       999,
		ImageURL:    "https://images.unsplash.com/photo-1714577419068-45189e7bda58?auto=format&fit=crop&q=80&w=1863",
		Location:    "Udupi, Karnataka",
		LocationTag: "Udupi",
	},
	{
		Name:        "Nandi Hills Sunrise",
		Description: "Witness the breathtaking sunrise from Nandi Hills. A perfect getaway for nature lovers and photographers.",
		Price:       899,
		ImageURL:    "https://images.unsplash.com/photo-1747321752407-2e247fb3b705?auto=format&fit=crop&q=80&w=1974",
		Location:    "Bangalore, Karnataka",
		LocationTag: "Bangalore",
	},
	{
		Name:        "Boat Cruise",
		Description: "A relaxing boat cruise through the scenic Sunderban delta. Keep an eye out for wildlife.",
		Price:       1499,
		ImageURL:    "https://images.unsplash.com/photo-1701186598733-3403fac40355?auto=format&fit=crop&q=80&w=2340",
		Location:    "Sunderban, West Bengal",
		LocationTag: "Sunderban",
	},
	{
		Name:        "Bungee Jumping",
		Description: "Experience the ultimate thrill with a bungee jump from one of the highest points in Manali.",
		Price:       2500,
		ImageURL:    "https://images.unsplash.com/photo-1559677624-3c956f10d431?auto=format&fit=crop&q=80&w=1925",
		Location:    "Manali, Himachal Pradesh",
		LocationTag: "Manali",
	},
	{
		Name:        "Scuba Diving",
		Description: "Discover the vibrant marine life and coral reefs of the Andaman islands.",
		Price:       4500,
		ImageURL:    "https://images.unsplash.com/photo-1682687982360-3fbab65f9d50?auto=format&fit=crop&q=80&w=2340",
		Location:    "Andaman",
		LocationTag: "Andaman",
	},
	{
		Name:        "Jungle Trek",
		Description: "A guided trek deep into the dense rainforests of the Western Ghats.",
		Price:       1100,
		ImageURL:    "https://images.unsplash.com/photo-1554039362-6daf559ddb63?auto=format&fit=crop&q=80&w=2340",
		Location:    "Western Ghats",
		LocationTag: "Ghats",
	},
	{
		Name:        "Rock Climbing",
		Description: "Learn the basics of rock climbing and bouldering on natural rock faces.",
		Price:       1300,
		ImageURL:    "https://images.unsplash.com/photo-1508287459906-37445322fdf6?auto=format&fit=crop&q=80&w=3270",
		Location:    "Hampi, Karnataka",
		LocationTag: "Hampi",
	},
	{
		Name:        "Ziplining",
		Description: "Fly across valleys and forests on a network of exciting ziplines.",
		Price:       1900,
		ImageURL:    "https://images.unsplash.com/photo-1679117730976-cdb5f6b05b88?auto=format&fit=crop&q=80&w=2340",
		Location:    "Goa",
		LocationTag: "Goa",
	},
}

// Catalog is one generated batch of sample data.
type Catalog struct {
	Experiences []*entity.Experience
	Slots       []*entity.Slot
	Promos      []*entity.PromoCode
}

// Store is the set of repositories a catalog is written to.
type Store struct {
	Experiences database.ExperienceRepository
	Slots       database.SlotRepository
	Promos      database.PromoRepository
}

// Generate builds the sample catalog. Slots start 1-7 days after now, on the hour between 07:00 and 15:00.
func Generate(now time.Time, rnd *rand.Rand) *Catalog {
	catalog := &Catalog{}

	for i := range sampleExperiences {
		experience := sampleExperiences[i]
		experience.ID = uuid.NewString()
		catalog.Experiences = append(catalog.Experiences, &experience)

		count := between(rnd, minSlots, maxSlots)
		for j := 0; j < count; j++ {
			catalog.Slots = append(catalog.Slots, &entity.Slot{
				ID:           uuid.NewString(),
				ExperienceID: experience.ID,
				StartTime:    slotTime(now, rnd),
				Capacity:     slotCapacities[rnd.IntN(len(slotCapacities))],
			})
		}
	}

	catalog.Promos = []*entity.PromoCode{
		{Code: "SAVE10", DiscountType: entity.DiscountPercent, DiscountValue: decimal.NewFromInt(10), IsActive: true},
		{Code: "FLAT100", DiscountType: entity.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true},
	}

	return catalog
}

// Load writes the catalog in dependency order.
func Load(ctx context.Context, store Store, catalog *Catalog) error {
	for _, experience := range catalog.Experiences {
		if err := store.Experiences.Create(ctx, experience); err != nil {
			return fmt.Errorf("failed to create experience %q: %w", experience.Name, err)
		}
	}
	for _, slot := range catalog.Slots {
		if err := store.Slots.Create(ctx, slot); err != nil {
			return fmt.Errorf("failed to create slot: %w", err)
		}
	}
	for _, promo := range catalog.Promos {
		if err := store.Promos.Upsert(ctx, promo); err != nil {
			return fmt.Errorf("failed to upsert promo %s: %w", promo.Code, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"experiences": len(catalog.Experiences),
		"slots":       len(catalog.Slots),
		"promos":      len(catalog.Promos),
	}).Info("Sample data loaded")
	return nil
}

func slotTime(now time.Time, rnd *rand.Rand) time.Time {
	day := now.AddDate(0, 0, between(rnd, minDayAhead, maxDayAhead))
	return time.Date(day.Year(), day.Month(), day.Day(), between(rnd, firstHour, lastHour), 0, 0, 0, now.Location())
}

// between returns a random int in [lo, hi].
func between(rnd *rand.Rand, lo, hi int) int {
	return lo + rnd.IntN(hi-lo+1)
}
