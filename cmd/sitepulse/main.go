// Package main is the entry point for sitepulse.
package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment always wins.
	_ = godotenv.Load()

	Execute()
}
