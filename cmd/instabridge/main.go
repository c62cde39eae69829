package main

import (
	"log"

	"github.com/arashpm/instabridge/internal/app"
)

func main() {
	if err := app.Run("config.yaml"); err != nil {
		log.Fatalf("instabridge: %v", err)
	}
}
