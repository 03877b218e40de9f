package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Name    string
		Version string
	}
	Server struct {
		Host      string
		Port      string
		LogLevel  string
		LogFormat string // "json" | "text"
	}
	Environment string // "development" | "staging" | "production"
	Twilio      struct {
		AuthToken       string
		SignatureSource string // "header" | "query"
	}
}

// IsDevelopment reports whether this process runs in the designated
// non-production configuration where signature validation may be bypassed.
func (c Config) IsDevelopment() bool { return c.Environment == "development" }

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("app.name", "Agentic AI IVR Demo")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")

	v.SetDefault("environment", "development")

	v.SetDefault("twilio.signature_source", "header")

	// Map envs
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")

	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")

	v.BindEnv("environment", "ENVIRONMENT")

	v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("twilio.signature_source", "TWILIO_SIGNATURE_SOURCE")

	var c Config
	c.App.Name = v.GetString("app.name")
	c.App.Version = v.GetString("app.version")

	c.Server.Host = v.GetString("server.host")
	c.Server.Port = v.GetString("server.port")
	c.Server.LogLevel = strings.ToLower(v.GetString("server.log_level"))
	c.Server.LogFormat = strings.ToLower(v.GetString("server.log_format"))

	c.Environment = strings.ToLower(v.GetString("environment"))

	c.Twilio.AuthToken = v.GetString("twilio.auth_token")
	c.Twilio.SignatureSource = strings.ToLower(v.GetString("twilio.signature_source"))

	return c
}
