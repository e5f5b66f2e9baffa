package config

import "github.com/joho/godotenv"

// LoadEnv loads a .env file from the working directory into the process
// environment. Callers tolerate a missing file via os.IsNotExist.
func LoadEnv() error {
	return godotenv.Load()
}
