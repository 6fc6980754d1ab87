package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all engine configuration
type Config struct {
	HTTPAddress string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GoogleClientID     string
	GoogleClientSecret string
	DiscordBotToken    string

	// NotificationAddress is the public HTTPS address the change feed pushes
	// notifications to. It must be reachable from the internet.
	NotificationAddress string

	RenewalLeadMinutes int
	TokenSkewMinutes   int
	RenewalScanSpec    string
	FanOutTTLHours     int
}

func (c *Config) RenewalLead() time.Duration {
	return time.Duration(c.RenewalLeadMinutes) * time.Minute
}

func (c *Config) TokenSkew() time.Duration {
	return time.Duration(c.TokenSkewMinutes) * time.Minute
}

func (c *Config) FanOutTTL() time.Duration {
	return time.Duration(c.FanOutTTLHours) * time.Hour
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":         "HTTP_ADDRESS",
		"MongoURI":            "MONGO_URI",
		"MongoDatabase":       "MONGO_DATABASE",
		"RedisAddr":           "REDIS_ADDR",
		"RedisPassword":       "REDIS_PASSWORD",
		"RedisDB":             "REDIS_DB",
		"GoogleClientID":      "GOOGLE_CLIENT_ID",
		"GoogleClientSecret":  "GOOGLE_CLIENT_SECRET",
		"DiscordBotToken":     "DISCORD_BOT_TOKEN",
		"NotificationAddress": "NOTIFICATION_ADDRESS",
		"RenewalLeadMinutes":  "RENEWAL_LEAD_MINUTES",
		"TokenSkewMinutes":    "TOKEN_SKEW_MINUTES",
		"RenewalScanSpec":     "RENEWAL_SCAN_SPEC",
		"FanOutTTLHours":      "FANOUT_TTL_HOURS",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("engine_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.kiteflow")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8084")
	v.SetDefault("MongoURI", "mongodb://localhost:27017")
	v.SetDefault("MongoDatabase", "kiteflow")
	v.SetDefault("RedisAddr", "localhost:6379")
	v.SetDefault("RedisDB", 0)
	v.SetDefault("RenewalLeadMinutes", 10)
	v.SetDefault("TokenSkewMinutes", 5)
	v.SetDefault("RenewalScanSpec", "@every 1m")
	v.SetDefault("FanOutTTLHours", 24)
}

// validateConfig validates the required configuration fields
func validateConfig(config *Config) error {
	var missingVars []string

	if config.GoogleClientID == "" {
		missingVars = append(missingVars, "GOOGLE_CLIENT_ID")
	}

	if config.GoogleClientSecret == "" {
		missingVars = append(missingVars, "GOOGLE_CLIENT_SECRET")
	}

	if config.DiscordBotToken == "" {
		missingVars = append(missingVars, "DISCORD_BOT_TOKEN")
	}

	if config.NotificationAddress == "" {
		missingVars = append(missingVars, "NOTIFICATION_ADDRESS")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	return nil
}
