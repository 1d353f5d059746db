package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/cubic/internal/config"
	"github.com/l1jgo/cubic/internal/data"
	"github.com/l1jgo/cubic/internal/dimension"
	"github.com/l1jgo/cubic/internal/gen"
	"github.com/l1jgo/cubic/internal/handler"
	gonet "github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
	"github.com/l1jgo/cubic/internal/persist"
	"github.com/l1jgo/cubic/internal/scripting"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/system"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              cubic  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        cubic chunk world server           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32;1m▶\033[0m %s\n", msg)
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("CUBIC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	printSection("storage")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	printOK(fmt.Sprintf("%s backend ready", cfg.Database.Backend))
	fmt.Println()

	printSection("generator")
	generator, closeGen, err := newGenerator(cfg.World, log)
	if err != nil {
		backend.Close()
		return fmt.Errorf("generator: %w", err)
	}
	defer closeGen()
	printOK(fmt.Sprintf("%s generator (light engine %s)", cfg.World.Generator, cfg.World.LightEngine))
	fmt.Println()

	sessions := gonet.NewSessionStore()
	opts := dimension.OptionsFromConfig(cfg)
	opts.Sessions = sessions
	dim := dimension.New("overworld", backend, generator, opts, log)

	registry := packet.NewRegistry(log)
	deps := &handler.Deps{World: dim, Log: log}
	handler.RegisterAll(registry, deps)

	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.SessionOptions{
		InQueue:      cfg.Network.InQueueSize,
		OutQueue:     cfg.Network.OutQueueSize,
		PacketRate:   cfg.Network.PacketRate,
		PacketBurst:  cfg.Network.PacketBurst,
		WriteTimeout: cfg.Network.WriteTimeout,
		ReadTimeout:  cfg.Network.ReadTimeout,
	}, log)
	if err != nil {
		dim.Close(context.Background())
		return fmt.Errorf("listen: %w", err)
	}
	go netServer.AcceptLoop()

	dim.Register(system.NewNetInputSystem(netServer, registry, sessions, cfg.Network.MaxPacketsPerTick,
		func(sess *gonet.Session) { handler.HandleDisconnect(sess, deps) }, log))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()
	// Input is polled faster than the world ticks so packets queue less.
	poll := time.NewTicker(cfg.Network.TickRate / 4)
	defer poll.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("world loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			dim.Tick(cfg.Network.TickRate)
		case <-poll.C:
			dim.PollInput(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			netServer.Shutdown()
			sessions.CloseAll()
			closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Minute)
			err := dim.Close(closeCtx)
			closeCancel()
			if err != nil {
				log.Error("world close failed", zap.Error(err))
				return err
			}
			log.Info("server stopped")
			return nil
		}
	}
}

// openBackend connects the configured document backend and applies its
// migrations.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := persist.NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return persist.NewPostgresBackend(db), nil
	case "sqlite":
		return persist.OpenSQLite(ctx, cfg.SQLitePath, log)
	case "memory":
		log.Warn("memory backend: nothing will survive a restart")
		return store.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newGenerator(cfg config.WorldConfig, log *zap.Logger) (world.Generator, func(), error) {
	nop := func() {}
	switch cfg.Generator {
	case "flat", "layered":
		preset, err := data.LoadPreset(cfg.PresetPath)
		if err != nil {
			return nil, nop, err
		}
		log.Info("preset loaded", zap.String("preset", preset.Name), zap.Int("layers", preset.Count()))
		if cfg.Generator == "flat" {
			return gen.NewFlat(preset, cfg.LightEngine), nop, nil
		}
		return gen.NewLayered(preset, cfg.LightEngine), nop, nil
	case "lua":
		engine, err := scripting.NewEngine(cfg.ScriptDir, log)
		if err != nil {
			return nil, nop, err
		}
		g, err := scripting.NewGenerator(engine, cfg.LightEngine)
		if err != nil {
			engine.Close()
			return nil, nop, err
		}
		return g, engine.Close, nil
	}
	return nil, nop, fmt.Errorf("unknown generator %q", cfg.Generator)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
