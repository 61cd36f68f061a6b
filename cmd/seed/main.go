// Command seed populates a development database with fake members,
// profiles and abuse reports.
package main

import (
	"flag"
	"log"

	"vivaha/internal/config"
	"vivaha/internal/database"
	"vivaha/internal/middleware"
	"vivaha/internal/seed"
)

func main() {
	members := flag.Int("members", 50, "Number of member accounts to create")
	reports := flag.Int("reports", 30, "Number of abuse reports to create")
	clean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.InitMiddleware(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	seeder, err := seed.NewSeeder(db)
	if err != nil {
		log.Fatalf("Failed to create seeder: %v", err)
	}

	if err := seeder.Run(seed.Options{
		Members: *members,
		Reports: *reports,
		Clean:   *clean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done. All seeded accounts use the password: password123")
}
