package main

import (
	"log"

	"dripbot/app"
	appconfig "dripbot/app/config"
	corecmd "dripbot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/config.yml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return appconfig.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("dripbot: %v", err)
	}
}
