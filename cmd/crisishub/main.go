package main

import (
	"flag"
	"log"

	"crisishub/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		log.Fatalf("crisishub: %v", err)
	}
}
