package environment

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
)

// Production defines the prod environment
const Production = "prod"

// Staging defines the staging environment
const Staging = "staging"

// Dev defines the dev environment
const Dev = "dev"

// Environment holds all configuration the application reads from its .env file
type Environment struct {
	Environment   string `mapstructure:"APP_ENV"`
	Cors          string `mapstructure:"CORS"`
	Port          string `mapstructure:"PORT"`
	Database      string `mapstructure:"DATABASE"`
	DatabaseUrl   string `mapstructure:"DATABASE_URL"`
	Redis         string `mapstructure:"REDIS"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	Sendinblue    string `mapstructure:"SENDINBLUE"`
	Firebase      string `mapstructure:"FIREBASE"`
	GCPProjectID  string `mapstructure:"GCP_PROJECT_ID"`
	BaseUrl       string `mapstructure:"BASE_URL"`
}

// Global is the process wide environment
var Global Environment

// Initialize reads the .env file into Global. Without a .env file the
// process environment is used as is.
func Initialize() {
	data, err := godotenv.Read(".env")
	if err != nil {
		data = map[string]string{}
		for _, pair := range os.Environ() {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) == 2 {
				data[parts[0]] = parts[1]
			}
		}
	}

	err = mapstructure.Decode(data, &Global)
	if err != nil {
		panic(err)
	}
}
