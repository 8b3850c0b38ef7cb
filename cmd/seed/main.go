package main

import (
	"context"
	"errors"
	"log"
	"os"

	"timeline/internal/config"
	"timeline/internal/database"
	"timeline/internal/domain"
	"timeline/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	email    string
	password string
	name     string
	role     domain.UserRole
	plan     domain.UserPlan
}

var seedUsers = []seedUser{
	{"admin@timeline.local", "admin123", "Administrador", domain.RoleAdmin, domain.PlanPremium},
	{"premium@timeline.local", "premium123", "Usuario Premium", domain.RoleUser, domain.PlanPremium},
	{"free@timeline.local", "free123", "Usuario Free", domain.RoleUser, domain.PlanFree},
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("config:", err)
	}

	db, err := database.Connect(cfg.DB.DSN, nil)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := repository.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	users := repository.NewUserRepository(db)
	ctx := context.Background()

	for _, s := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal(err)
		}
		err = users.Create(ctx, &domain.User{
			Email:        s.email,
			PasswordHash: string(hash),
			Name:         s.name,
			Role:         s.role,
			Plan:         s.plan,
		})
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			log.Printf("User exists, skipping: %s", s.email)
		case err != nil:
			log.Fatalf("create %s: %v", s.email, err)
		default:
			log.Printf("User created: %s / %s (%s, %s)", s.email, s.password, s.role, s.plan)
		}
	}

	log.Println("Seeding complete")
}
