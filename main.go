package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"gitlab.com/nunet/gpu-hyena/cmd"
)

func main() {
	// A .env file next to the binary is optional; real environment variables
	// always take precedence over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	// Execute command-line interface; should be the last call in main()
	cmd.Execute()
}
