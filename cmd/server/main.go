package main

import (
	"os"

	"clipfeed/internal/logging"
	"clipfeed/internal/transport/http"
)

func main() {
	if err := http.Run(); err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}
