package main

import (
	"database/sql"
	"flag"
	"log"

	"chatserver-be/internal/config"
	"chatserver-be/internal/model"
	"chatserver-be/pkg/database"
	"chatserver-be/pkg/warehouse"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// seed creates a demo channel with one LLM-enabled thread and, when the
// warehouse is sqlite, a small orders table for that thread to query.
func main() {
	userFlag := flag.String("user", "", "user id to add to the demo channel (default: random)")
	flag.Parse()

	cfg := config.Load()
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			log.Fatalf("Error: invalid -user: %v", err)
		}
	}
	channelID := uuid.New()

	member := model.ChannelMember{ChannelID: channelID, UserID: userID, Role: "admin"}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		log.Fatalf("Error creating membership: %v", err)
	}

	thread := model.Thread{
		ChannelID:     channelID,
		Title:         "Sales questions",
		IsLLMEnabled:  true,
		AllowedTables: datatypes.JSONSlice[string]{"orders"},
	}
	if err := db.Create(&thread).Error; err != nil {
		log.Fatalf("Error creating thread: %v", err)
	}

	log.Printf("Seeded channel=%s thread=%s user=%s", channelID, thread.ID, userID)

	if cfg.Warehouse.Driver != warehouse.DriverSQLite {
		return
	}
	wdb, err := warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN)
	if err != nil {
		log.Fatalf("Error opening warehouse: %v", err)
	}
	defer wdb.Close()
	if err := seedOrders(wdb); err != nil {
		log.Fatalf("Error seeding warehouse: %v", err)
	}
	log.Println("Seeded warehouse table: orders")
}

func seedOrders(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, customer TEXT NOT NULL, total REAL NOT NULL, placed_at TEXT NOT NULL)`,
		`INSERT OR IGNORE INTO orders (id, customer, total, placed_at) VALUES
			(1, 'acme', 120.50, '2026-01-04'),
			(2, 'globex', 75.00, '2026-01-19'),
			(3, 'acme', 310.25, '2026-02-02'),
			(4, 'initech', 42.10, '2026-02-14')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
