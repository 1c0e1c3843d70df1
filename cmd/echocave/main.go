package main

import (
	"os"

	"horse.fit/echocave/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
