// @title SecuJob Messaging
// @version 0.1
// @description Candidate and company message threads attached to job applications.

// @host localhost:8080
// @BasePath /
// @query.collection.format multi
// @schemes http

package main

import (
	"flag"
	"log"

	"tush00nka/secujob_messaging/internal/app"
	"tush00nka/secujob_messaging/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	app.Run(cfg)
}
