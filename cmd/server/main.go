package main

import (
	"context"
	"log"
	"os"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/server"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig(ctx, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
