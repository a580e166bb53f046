package models

import (
	"log"

	"bitbucket.org/mmdatafocus/shop_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Shop{},
		&Order{},
		&DocumentSequence{},
		&StockMovement{},
		&AuditLog{},
		&PushToken{},
		&SlipVerificationJob{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
