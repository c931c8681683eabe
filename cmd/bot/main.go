// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/api/status"
	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/discord"
	"github.com/osa030/jukebot/internal/infra/logger"
	"github.com/osa030/jukebot/internal/infra/store"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("jukebot", "Discord music bot")
	configPath = app.Flag("config", "Path to config file (empty: environment and defaults only)").Default("config/jukebot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	checkSetupCmd  = app.Command("check-setup", "Check that yt-dlp, ffmpeg and the config are usable")
	updateYtdlpCmd = app.Command("update-ytdlp", "Update the yt-dlp executable")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	loggerConfig.File = *logfile
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	switch command {
	case checkSetupCmd.FullCommand():
		if !checkSetup() {
			os.Exit(1)
		}
		return
	case updateYtdlpCmd.FullCommand():
		if err := updateYtdlp(); err != nil {
			zlog.Error().Err(err).Msg("yt-dlp update failed")
			os.Exit(1)
		}
		return
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %+v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	downloader, err := ytdlp.NewClient(ytdlp.Config{
		Dir:          cfg.Downloads.Dir,
		AudioFormat:  cfg.Downloads.AudioFormat,
		AudioQuality: cfg.Downloads.AudioQuality,
		Proxy:        cfg.Downloads.Proxy,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create yt-dlp client")
	}
	if version, err := downloader.Version(ctx); err != nil {
		zlog.Warn().Err(err).Msg("yt-dlp is not available, songs cannot be played until it is installed")
	} else {
		zlog.Info().Msgf("yt-dlp version %s", version)
	}

	settings, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open settings store")
	}
	defer settings.Close()

	dg, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	connector := discord.NewConnector(dg, cfg.Playback.FFmpegPath)

	sessionMgr, err := session.NewManager(cfg, session.Deps{
		Catalog:    downloader,
		Downloader: downloader,
		Connector:  connector,
		Settings:   settings,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}

	bot := discord.NewBot(dg, cfg, sessionMgr, downloader)
	if err := bot.Open(); err != nil {
		sessionMgr.Close()
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			zlog.Error().Err(err).Msg("Failed to close discord session")
		}
	}()
	// Leave voice channels while the gateway is still open
	defer sessionMgr.Close()

	// Voice joins need the gateway, so the manager starts after the bot is connected
	if err := sessionMgr.Start(ctx); err != nil {
		zlog.Error().Err(err).Msg("Failed to restore 24/7 channels")
	}

	var (
		server      *status.Server
		serverErrCh <-chan error
	)
	if cfg.Server.Addr != "" {
		server = status.NewServer(cfg.Server.Addr, status.NewHandler(sessionMgr, cfg.Server.AdminToken))
		serverErrCh = server.Start()
	}

	zlog.Info().Msg("Bot is running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return err
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown status server: %v", err)
		}
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// checkSetup verifies the external tools and the configuration. It reports whether everything is usable.
func checkSetup() bool {
	ok := true
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ config: %v\n", err)
		ok = false
	} else {
		fmt.Printf("✅ config: %s\n", *configPath)
		if _, err := filter.Build(cfg.IsFilterEnabled, cfg.FilterSettings); err != nil {
			fmt.Printf("❌ filters: %v\n", err)
			ok = false
		} else {
			fmt.Println("✅ filters")
		}
	}

	dir := "downloads"
	ffmpegPath := "ffmpeg"
	if cfg != nil {
		dir = cfg.Downloads.Dir
		ffmpegPath = cfg.Playback.FFmpegPath
	}

	client, err := ytdlp.NewClient(ytdlp.Config{Dir: dir})
	if err != nil {
		fmt.Printf("❌ download directory: %v\n", err)
		ok = false
	} else if version, err := client.Version(ctx); err != nil {
		fmt.Println("❌ yt-dlp not found in PATH")
		fmt.Println("   Install from: https://github.com/yt-dlp/yt-dlp/releases")
		ok = false
	} else {
		fmt.Printf("✅ yt-dlp %s\n", version)
	}

	if path, err := exec.LookPath(ffmpegPath); err != nil {
		fmt.Printf("❌ ffmpeg not found: %s\n", ffmpegPath)
		ok = false
	} else {
		fmt.Printf("✅ ffmpeg: %s\n", path)
	}

	if ok {
		fmt.Println("\nSetup looks good.")
	} else {
		fmt.Println("\nSome checks failed.")
	}
	return ok
}

// updateYtdlp updates yt-dlp in place.
func updateYtdlp() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := ytdlp.NewClient(ytdlp.Config{Dir: os.TempDir()})
	if err != nil {
		return err
	}
	out, err := client.Update(ctx)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("yt-dlp: %s", out)
	return nil
}
