package main

import (
	"context"
	"log"

	"github.com/m3rciful/menubot/core/cmd"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (cmd.App, error) {
			a, err := app.New(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
