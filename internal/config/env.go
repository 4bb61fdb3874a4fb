package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads environment variables from the first of .env/.env.local that exists.
// Existing process environment variables are never overwritten.
func loadEnvFile() error {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
		fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
		return nil
	}
	return fmt.Errorf("no .env file found")
}
