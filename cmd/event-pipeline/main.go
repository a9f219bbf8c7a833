package main

import (
	"os"

	"horse.fit/event-pipeline/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
