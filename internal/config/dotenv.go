package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads path into the process environment so plugin credential
// params can reference ${VAR}-style placeholders resolved at config load
// time. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
