package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/neyrobot/showcanvas/canvasservice"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	if err := canvasservice.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "showcanvas: %v\n", err)
		os.Exit(1)
	}
}
