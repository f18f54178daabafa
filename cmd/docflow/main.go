package main

import (
	"context"
	"log"
	_ "time/tzdata" // deadline_time_zone must resolve on minimal images

	"github.com/dalemusser/docflow/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
