package main

import (
	"os"

	"horse.fit/intake/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
