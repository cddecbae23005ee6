package models

import (
	"log"

	"github.com/waywedesign-cochin/smk-api/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Course{}, &Batch{},
		&Student{},
		&Fee{}, &Payment{},
		&BatchHistory{},
		&CommunicationLog{},
		&NotificationOutboxRecord{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
