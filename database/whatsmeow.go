package database

import (
	"context"
	"log"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Container is the whatsmeow device store. Every paired tenant owns one
// device row in here; the app DB never duplicates its contents.
var Container *sqlstore.Container

func InitWhatsmeow(dbURL string) {
	dbLog := waLog.Stdout("Database", "WARN", true)

	container, err := sqlstore.New(context.Background(), "postgres", dbURL, dbLog)
	if err != nil {
		log.Fatal("Failed to init whatsmeow store:", err)
	}
	Container = container
	log.Println("Whatsmeow device store connected successfully")
}
