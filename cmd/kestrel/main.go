package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/kestrelbot/kestrel/internal/config"
	"github.com/kestrelbot/kestrel/internal/irc"
	"github.com/kestrelbot/kestrel/internal/plugin"
	"github.com/kestrelbot/kestrel/internal/plugins/search"
	"github.com/kestrelbot/kestrel/internal/plugins/tz"
	"github.com/kestrelbot/kestrel/internal/plugins/video"
	"github.com/kestrelbot/kestrel/internal/plugins/wikipedia"
	"github.com/kestrelbot/kestrel/internal/telemetry"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	configPath := flag.StringP("config", "c", "./config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.BoolP("version", "v", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("kestrel version %s (built %s)\n", version, buildDate)
		os.Exit(0)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	irc.Version = version
	irc.BuildDate = buildDate

	os.Exit(run(*configPath))
}

// sessionHost adapts the session to the capability surface plugins see.
type sessionHost struct {
	*irc.Session
}

func (h sessionHost) Reply(target, text string) {
	h.Privmsg(target, text)
}

func run(configPath string) int {
	// Credentials may live in a .env file next to the binary.
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded .env")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		return 1
	}
	cfg.ApplyEnv(os.Environ())

	telemetry.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Infof("Serving metrics on %s", cfg.MetricsAddr)
			if err := telemetry.Serve(cfg.MetricsAddr); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	registry := plugin.NewRegistry(cfg.CommandPrefix, cfg.PluginTimeout)
	if err := registerPlugins(registry, cfg); err != nil {
		log.Errorf("Failed to register plugins: %v", err)
		return 1
	}

	session := irc.NewSession(cfg)
	host := sessionHost{session}
	session.OnChatMessage = func(ctx context.Context, target, sender, text string) {
		registry.Route(ctx, host, target, sender, text)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("Connecting to %s:%d as %s", cfg.Server, cfg.Port, cfg.Nick)
	if err := session.Run(ctx); err != nil {
		log.Errorf("Session failed: %v", err)
		return 1
	}

	registry.Wait()
	log.Info("Goodbye")
	return 0
}

func registerPlugins(r *plugin.Registry, cfg *config.Config) error {
	if err := wikipedia.New(cfg.Plugin("wikipedia")).Register(r); err != nil {
		return err
	}
	if err := video.New(cfg.Plugin("video")).Register(r); err != nil {
		return err
	}
	if err := search.New(cfg.Plugin("search")).Register(r); err != nil {
		return err
	}
	return tz.New(cfg.Plugin("tz")).Register(r)
}
