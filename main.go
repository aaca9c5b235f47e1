package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"dawapos/m/internal/api"
	"dawapos/m/internal/config"
	"dawapos/m/internal/database"
	"dawapos/m/internal/migrations"
	"dawapos/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadCatalog(db, cfg.CatalogCSV)

	handler := api.New(db, cfg.Secret)

	log.Printf("DawaPOS server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
