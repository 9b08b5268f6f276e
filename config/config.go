// Package config loads the TOML configuration file that drives a
// myousync process, with environment-variable fallbacks for provider
// credentials. Grounded on denpa-radio's config/config.go (env-var
// defaulting idiom), using github.com/pelletier/go-toml/v2 for the file
// format itself.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration table.
type Config struct {
	Paths    PathsConfig     `toml:"paths"`
	YouTube  YouTubeConfig   `toml:"youtube"`
	Web      WebConfig       `toml:"web"`
	Scrape   ScrapeConfig    `toml:"scrape"`
	Jellyfin *JellyfinConfig `toml:"jellyfin"`
}

// PathsConfig names the filesystem trees this process reads and writes.
type PathsConfig struct {
	Music           string `toml:"music"`
	Temp            string `toml:"temp"`
	Migrate         string `toml:"migrate"`
	Database        string `toml:"database"`
	FilePermissions string `toml:"file_permissions"`
	DirPermissions  string `toml:"dir_permissions"`
}

// YouTubeConfig carries device-code OAuth2 credentials for the playlist
// provider, defaulted from YOUTUBE_CLIENT_ID / YOUTUBE_CLIENT_SECRET.
type YouTubeConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// WebConfig configures the (out-of-scope, contract-only) HTTP front end's
// listen port and static asset directory.
type WebConfig struct {
	Port int    `toml:"port"`
	Path string `toml:"path"`
}

// ScrapeConfig configures the extractor adapter and the scheduler's loop
// intervals.
type ScrapeConfig struct {
	YtDlp            string        `toml:"yt_dlp"`
	YtDlpRate        time.Duration `toml:"yt_dlp_rate"`
	CleanupTagRate   time.Duration `toml:"cleanup_tag_rate"`
	PlaylistSyncRate time.Duration `toml:"playlist_sync_rate"`
	JellyfinSyncRate time.Duration `toml:"jellyfin_sync_rate"`
}

// PathRewrite rewrites a local library path prefix before matching it
// against the media-server's own path view.
type PathRewrite struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// JellyfinConfig configures the media-server mirror. A nil *JellyfinConfig
// on Config means the mirror loop is a no-op.
type JellyfinConfig struct {
	Server      string       `toml:"server"`
	User        string       `toml:"user"`
	Password    string       `toml:"password"`
	Collection  string       `toml:"collection"`
	RewritePath *PathRewrite `toml:"rewrite_path"`
}

func defaults() Config {
	return Config{
		Paths: PathsConfig{Database: "myousync.db"},
		Web:   WebConfig{Port: 3001, Path: "web"},
		Scrape: ScrapeConfig{
			YtDlp:            "yt-dlp",
			YtDlpRate:        10 * time.Second,
			CleanupTagRate:   time.Hour,
			PlaylistSyncRate: 5 * time.Minute,
			JellyfinSyncRate: 10 * time.Minute,
		},
	}
}

// Load reads and parses the TOML file at path, applying defaults for any
// field left unset and environment-variable fallbacks for the YouTube
// credentials.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if cfg.YouTube.ClientID == "" {
		cfg.YouTube.ClientID = os.Getenv("YOUTUBE_CLIENT_ID")
	}
	if cfg.YouTube.ClientSecret == "" {
		cfg.YouTube.ClientSecret = os.Getenv("YOUTUBE_CLIENT_SECRET")
	}

	return &cfg, nil
}

// ResolvePath returns the configured config file path: an explicit CLI
// argument if non-empty, else MYOUSYNC_CONFIG_FILE, else "myousync.toml".
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("MYOUSYNC_CONFIG_FILE"); v != "" {
		return v
	}
	return "myousync.toml"
}
