package main

import (
	"github.com/sahilchouksey/studyquiz-api/config"
	"github.com/sahilchouksey/studyquiz-api/database"
	"github.com/sahilchouksey/studyquiz-api/utils"
	"gorm.io/gorm"
)

func main() {
	if err := config.LoadENV(); err != nil {
		utils.Log.WithError(err).Warn(".env could not be loaded, using system environment variables")
	}

	store, err := database.StartGORM()
	if err != nil {
		utils.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		utils.Log.WithError(err).Fatal("Failed to run migrations")
	}

	gormDB := store.GetDB().(*gorm.DB)
	if err := database.RunSeeds(gormDB); err != nil {
		utils.Log.WithError(err).Fatal("Seeding failed")
	}

	utils.Log.Info("Seeding completed. Admin user is created from ADMIN_EMAIL and ADMIN_PASSWORD when set.")
}
