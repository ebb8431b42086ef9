// Command etdcd is the daemon's entry point. Argument parsing itself is
// out of scope (spec.md §1's Non-goals), so this stays to the one
// install/run switch NebulaLink's osManager pattern uses, reading
// everything else from config.Config.
package main

import (
	"os"

	kardianos "github.com/kardianos/service"

	"etdc/internal/config"
	"etdc/internal/daemon"
	"etdc/internal/logging"
)

func main() {
	cfg := config.New()
	log := logging.Init(cfg.LogFilePath())

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Error("failed to build daemon", "error", err)
		os.Exit(1)
	}

	svc, err := kardianos.New(d, daemon.ServiceConfig(cfg))
	if err != nil {
		log.Error("failed to build OS service wrapper", "error", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "install" {
		if err := svc.Install(); err != nil {
			log.Error("install failed", "error", err)
			os.Exit(1)
		}
		log.Info("service installed")
		return
	}

	if err := svc.Run(); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}
