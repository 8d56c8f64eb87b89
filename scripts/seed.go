package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/adapters/database"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/hospitalops/internal/infrastructure/observability"
	"github.com/zatekoja/hospitalops/pkg/config"
)

type seedUser struct {
	name     string
	role     entities.UserRole
	verified bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger("queue-seed", cfg.Server.Env)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				notifications,
				queue_status_logs,
				priority_entries,
				queue_entries,
				queue_status,
				queue_schedules,
				users
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to reset tables")
		}
		if _, err := pgClient.DB().ExecContext(ctx, `UPDATE queue_counters SET value = 0 WHERE name = 'ticket'`); err != nil {
			log.Fatal().Err(err).Msg("failed to reset ticket counter")
		}
	}

	users := []seedUser{
		{"Amara Diallo", entities.RoleNurse, true},
		{"Kwame Mensah", entities.RoleNurse, true},
		{"Efua Owusu", entities.RoleNurse, true},
		{"Dr. Yaa Asante", entities.RoleDoctor, true},
		{"Dr. Kofi Boateng", entities.RoleDoctor, true},
		{"Abena Sarpong", entities.RolePatient, true},
		{"Kojo Appiah", entities.RolePatient, true},
		{"Adwoa Agyeman", entities.RolePatient, true},
		{"Yaw Darko", entities.RolePatient, false},
		{"Akosua Frimpong", entities.RoleAdmin, true},
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		var id int64
		err := pgClient.DB().QueryRowContext(ctx,
			`INSERT INTO users (name, role, verified, hospital) VALUES ($1, $2, $3, $4) RETURNING id`,
			u.name, u.role, u.verified, "General Hospital",
		).Scan(&id)
		if err != nil {
			log.Error().Err(err).Str("name", u.name).Msg("failed to create user")
			continue
		}
		ids = append(ids, id)
	}
	log.Info().Int("count", len(ids)).Msg("users seeded")

	store := database.NewQueueStoreAdapter(pgClient)
	for i, department := range entities.Departments() {
		schedule := &entities.QueueSchedule{
			Department: department,
			NurseID:    ids[i%3],
			StartTime:  "08:00",
			EndTime:    "17:00",
			// Monday through Friday
			DaysOfWeek:     []int{0, 1, 2, 3, 4},
			IsActive:       true,
			OverrideStatus: entities.OverrideAuto,
		}
		if err := store.CreateSchedule(ctx, schedule); err != nil {
			log.Error().Err(err).Str("department", string(department)).Msg("failed to create schedule")
			continue
		}
		log.Info().
			Str("department", string(department)).
			Int64("schedule_id", schedule.ID).
			Msg("schedule seeded")
	}

	log.Info().Msg("seeding complete")
}
