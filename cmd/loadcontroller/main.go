package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"GoLoadController/cmd/loadcontroller/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		log.WithError(err).Error("loadcontroller failed")
		os.Exit(1)
	}
}
