// Loads sample experiences, slots and promo codes into Postgres. Existing data is wiped.
package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ds124wfegd/bookit/config"
	repository "github.com/ds124wfegd/bookit/internal/database/postgres"
	"github.com/ds124wfegd/bookit/internal/seed"
	"github.com/ds124wfegd/bookit/pkg/postgres"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := postgres.ResetData(ctx, db); err != nil {
		logrus.Fatalf("Failed to clear old data: %v", err)
	}
	logrus.Info("Old data cleared")

	now := time.Now()
	catalog := seed.Generate(now, rand.New(rand.NewPCG(uint64(now.UnixNano()), 0)))

	store := seed.Store{
		Experiences: repository.NewExperienceRepository(db),
		Slots:       repository.NewSlotRepository(db),
		Promos:      repository.NewPromoRepository(db),
	}
	if err := seed.Load(ctx, store, catalog); err != nil {
		logrus.Fatalf("Error with data seeding: %v", err)
	}

	logrus.Info("Data seeding complete")
}
