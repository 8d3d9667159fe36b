package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the runtime configuration read from the environment.
type Config struct {
	DiscordToken        string   `env:"DISCORD_BOT_TOKEN,notEmpty"`
	SpotifyClientID     string   `env:"SPOTIFY_CLIENT_ID,notEmpty"`
	SpotifyClientSecret string   `env:"SPOTIFY_CLIENT_SECRET,notEmpty"`
	YouTubeAPIKey       string   `env:"YOUTUBE_API_KEY,notEmpty"`
	YouTubeProxy        string   `env:"YOUTUBE_PROXY"`
	ClearThreshold      int      `env:"COMMAND_CLEAR_THRESHOLD" envDefault:"3"`
	AutoDisconnect      bool     `env:"AUTO_DISCONNECT"         envDefault:"true"`
	StoragePath         string   `env:"STORAGE_PATH"            envDefault:"data/datastore.json"`
	StatusAddr          string   `env:"STATUS_ADDR"             envDefault:":8787"`
	LogLevel            string   `env:"LOG_LEVEL"               envDefault:"info"`
	LogFile             string   `env:"LOG_FILE"`
	GuildBlacklist      []string `env:"GUILD_BLACKLIST"         envSeparator:","`
}

// LoadDotEnv reads .env files into the process environment. A missing file is
// not an error; the system environment is used as is.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		if os.IsNotExist(err) {
			log.Info().Msg("no .env file found, using system environment")
			return
		}
		log.Warn().Err(err).Msg("failed to read .env file")
	}
}

// Load parses the environment. Missing credentials are reported as an error.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ClearThreshold < 0 {
		return nil, fmt.Errorf("COMMAND_CLEAR_THRESHOLD must not be negative, got %d", cfg.ClearThreshold)
	}
	return &cfg, nil
}

// CLIConfig is the subset of the environment the operator CLI needs.
type CLIConfig struct {
	DiscordToken   string `env:"DISCORD_BOT_TOKEN,notEmpty"`
	ClearThreshold int    `env:"COMMAND_CLEAR_THRESHOLD" envDefault:"3"`
	StoragePath    string `env:"STORAGE_PATH"            envDefault:"data/datastore.json"`
}

// LoadCLI parses the environment for the operator CLI.
func LoadCLI() (*CLIConfig, error) {
	cfg, err := env.ParseAs[CLIConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Blacklisted reports whether guildID is listed in GUILD_BLACKLIST.
func (c *Config) Blacklisted(guildID string) bool {
	for _, id := range c.GuildBlacklist {
		if id == guildID {
			return true
		}
	}
	return false
}
