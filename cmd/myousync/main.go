// Command myousync runs the reconciliation daemon, or one of a handful of
// administrative subcommands (user, lists) that mutate the store directly.
// Subcommands are dispatched directly on os.Args[1], with no flag
// parsing, mirroring ManuGH-xg2g's cmd/daemon/main.go ("config"
// subcommand short-circuit).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/splamy/myousync/config"
	"github.com/splamy/myousync/internal/deviceauth"
	"github.com/splamy/myousync/internal/extractor"
	"github.com/splamy/myousync/internal/library"
	"github.com/splamy/myousync/internal/mirror"
	"github.com/splamy/myousync/internal/notify"
	"github.com/splamy/myousync/internal/resolver"
	"github.com/splamy/myousync/internal/scheduler"
	"github.com/splamy/myousync/internal/secrets"
	"github.com/splamy/myousync/internal/store"
	"github.com/splamy/myousync/internal/youtube"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runDaemon(os.Args[2:])
	case "user":
		err = runUser(os.Args[2:])
	case "lists":
		err = runLists(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  myousync run [config_path]
  myousync user add <username> <password>
  myousync user remove <username>
  myousync lists add <youtube_playlist_id> [jellyfin_playlist_id]
  myousync lists remove <youtube_playlist_id>
  myousync lists list`)
}

// openStore resolves config_path (falling back to MYOUSYNC_CONFIG_FILE then
// myousync.toml), loads the config, and opens the database it names.
func openStore(configPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	s, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, s, nil
}

func runDaemon(args []string) error {
	var configPath string
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, s, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ext := extractor.New(s, cfg.Scrape.YtDlp, cfg.Paths.Temp, cfg.Scrape.YtDlpRate)
	res := resolver.New(s)
	lib := library.New(library.Paths{Music: cfg.Paths.Music, Temp: cfg.Paths.Temp, Migrate: cfg.Paths.Migrate})
	mir := mirror.New(s, lib, cfg.Jellyfin)

	prompt := func(verificationURL, userCode string) {
		slog.Warn("visit the verification URL and enter the code to authorize YouTube access",
			"url", verificationURL, "code", userCode)
	}
	auth := deviceauth.New(s, cfg.YouTube.ClientID, cfg.YouTube.ClientSecret, prompt)
	yt := youtube.New(s, auth)

	sc := scheduler.New(scheduler.Config{
		Store:            s,
		YouTube:          yt,
		Extractor:        ext,
		Resolver:         res,
		Library:          lib,
		Mirror:           mir,
		Bus:              notify.NewBus(),
		PlaylistSyncRate: cfg.Scrape.PlaylistSyncRate,
		TaggerRate:       cfg.Scrape.CleanupTagRate,
		MirrorRate:       cfg.Scrape.JellyfinSyncRate,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("myousync starting",
		"music", cfg.Paths.Music, "temp", cfg.Paths.Temp, "database", cfg.Paths.Database)

	err = sc.Run(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	slog.Info("myousync stopped")
	return nil
}

func runUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: myousync user add|remove ...")
	}

	_, s, err := openStore("")
	if err != nil {
		return err
	}
	defer s.Close()

	switch args[0] {
	case "add":
		if len(args) != 3 {
			return fmt.Errorf("usage: myousync user add <username> <password>")
		}
		hash, err := secrets.HashPassword(args[2])
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		if err := s.AddUser(args[1], hash); err != nil {
			return fmt.Errorf("add user: %w", err)
		}
		slog.Info("user added", "username", args[1])
		return nil

	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: myousync user remove <username>")
		}
		removed, err := s.DeleteUser(args[1])
		if err != nil {
			return fmt.Errorf("remove user: %w", err)
		}
		if !removed {
			return fmt.Errorf("no such user %q", args[1])
		}
		slog.Info("user removed", "username", args[1])
		return nil

	default:
		return fmt.Errorf("usage: myousync user add|remove ...")
	}
}

func runLists(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: myousync lists add|remove|list ...")
	}

	_, s, err := openStore("")
	if err != nil {
		return err
	}
	defer s.Close()

	switch args[0] {
	case "add":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: myousync lists add <youtube_playlist_id> [jellyfin_playlist_id]")
		}
		pc := store.PlaylistConfig{RemotePlaylistID: args[1], Enabled: true}
		if len(args) == 3 {
			pc.ExternalPlaylistID = &args[2]
		}
		if err := s.AddPlaylistConfig(pc); err != nil {
			return fmt.Errorf("add playlist config: %w", err)
		}
		slog.Info("playlist added", "playlist", args[1])
		return nil

	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: myousync lists remove <youtube_playlist_id>")
		}
		if err := s.DeletePlaylistConfig(args[1]); err != nil {
			return fmt.Errorf("remove playlist config: %w", err)
		}
		slog.Info("playlist removed", "playlist", args[1])
		return nil

	case "list":
		configs, err := s.AllPlaylistConfigs()
		if err != nil {
			return fmt.Errorf("list playlist configs: %w", err)
		}
		for _, pc := range configs {
			external := "-"
			if pc.ExternalPlaylistID != nil {
				external = *pc.ExternalPlaylistID
			}
			fmt.Printf("%s\tenabled=%v\tjellyfin=%s\n", pc.RemotePlaylistID, pc.Enabled, external)
		}
		return nil

	default:
		return fmt.Errorf("usage: myousync lists add|remove|list ...")
	}
}
