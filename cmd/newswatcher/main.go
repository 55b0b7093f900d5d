package main

import (
	"log"

	"github.com/patric-chuzhbe/newswatcher/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatalf("Unable to initialize the application: %v", err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
