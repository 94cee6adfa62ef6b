package env

import (
	"os"

	"github.com/joho/godotenv"
)

// GetEnv returns the environment value for key, or def when unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found and exports its values into
// the process environment without overriding variables that are already
// set. It returns the file used, or "" when none was found.
func SetupEnvFile(candidates ...string) (string, error) {
	if len(candidates) == 0 {
		candidates = []string{
			".env",          // Current directory
			"../../.env",    // From cmd/chaletbook to project root
			"../../../.env", // Fallback for deeper nesting
		}
	}

	for _, envFile := range candidates {
		values, err := godotenv.Read(envFile)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, exists := os.LookupEnv(k); exists {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return envFile, err
			}
		}
		return envFile, nil
	}

	// Containers configure everything through the real environment
	return "", nil
}
