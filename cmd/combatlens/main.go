// combatlens - passive combat statistics for the game's world stream.
//
// combatlens decodes the server-to-client byte stream of the game, either
// forwarded live by a sniffer over TCP or replayed from a pcap capture,
// tracks damage and healing per player, splits the timeline into sessions
// per dungeon instance and serves everything over a local HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/combatlens/internal/api"
	"github.com/energizer-project/combatlens/internal/capture"
	"github.com/energizer-project/combatlens/internal/cli"
	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/db"
	"github.com/energizer-project/combatlens/internal/delta"
	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/health"
	"github.com/energizer-project/combatlens/internal/modules"
	"github.com/energizer-project/combatlens/internal/network"
	"github.com/energizer-project/combatlens/internal/protocol"
	"github.com/energizer-project/combatlens/internal/scheduler"
	"github.com/energizer-project/combatlens/internal/schema"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/state"
	"github.com/energizer-project/combatlens/internal/telemetry"
	"github.com/energizer-project/combatlens/internal/tracker"
	"github.com/energizer-project/combatlens/internal/util"
)

const (
	AppName    = "combatlens"
	AppVersion = "0.4.0"
	Banner     = `
                  _           _   _
   ___ ___  _ __ | |__   __ _| |_| | ___ _ __  ___
  / __/ _ \| '_ \| '_ \ / _' | __| |/ _ \ '_ \/ __|
 | (_| (_) | | | | |_) | (_| | |_| |  __/ | | \__ \
  \___\___/|_| |_|_.__/ \__,_|\__|_|\___|_| |_|___/
                                               v%s
`
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	setup := flag.Bool("setup", false, "run the interactive setup wizard and exit")
	noConsole := flag.Bool("no-console", false, "disable the interactive console")
	flag.Parse()

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *setup || cfg.IsFirstRun() {
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "setup wizard failed: %v\n", err)
			os.Exit(1)
		}
		if *setup {
			return
		}
	}

	logging := cfg.GetLogging()
	logFile, err := util.InitLogger(util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxBackups: logging.MaxBackups,
		Console:    os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting combatlens")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	if err := run(cfg, !*noConsole); err != nil {
		log.Error().Err(err).Msg("combatlens stopped with an error")
		os.Exit(1)
	}
	log.Info().Msg("combatlens stopped")
}

func run(cfg *config.Config, console bool) error {
	storage := cfg.GetStorage()
	engineCfg := cfg.GetEngine()
	capCfg := cfg.GetCapture()

	tables, err := gamedata.Load(storage.GameDataDir)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load game data, ids will be shown raw")
		tables = gamedata.New()
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to build schema registry: %w", err)
	}

	var (
		sessions   session.Store
		sessionsDB *db.SessionStore
	)
	if storage.SessionDB != "" {
		sessionsDB, err = db.NewSessionStore(storage.SessionDB)
		if err != nil {
			log.Warn().Err(err).Msg("session database unavailable, sessions will not be stored")
		} else {
			sessions = sessionsDB
			defer sessionsDB.Close()
		}
	}

	cache := state.NewNameCache(storage.CacheFile, storage.CacheFlushDelay())
	if err := cache.Load(); err != nil {
		log.Warn().Err(err).Msg("user cache ignored")
	}

	eventBus := events.NewEventBus()
	runtimeFlags := config.NewRuntime(engineCfg)

	store := state.NewStore(state.Options{
		Engine:   engineCfg,
		Runtime:  runtimeFlags,
		Names:    tables,
		Sessions: sessions,
		Notifier: eventBus,
		Cache:    cache,
		LogRoot:  storage.LogDirectory,
		Version:  AppVersion,
	})

	instances := tracker.New(store, tracker.Config{
		Debounce:   engineCfg.InstanceDebounce(),
		WipeWindow: engineCfg.WipeWindow(),
	})
	defer instances.Stop()

	loadouts := modules.NewCollector()
	interpreter := delta.New(registry, store, instances, delta.Options{
		Names:     tables,
		Modules:   loadouts,
		WipeMin:   engineCfg.AOIWipeMin,
		WipeRatio: engineCfg.AOIWipeRatio,
	})

	zstd, err := protocol.NewZstdDecompressor(0)
	if err != nil {
		return err
	}
	defer zstd.Close()

	dispatcher := protocol.NewDispatcher(interpreter, zstd, engineCfg.MaxFrameSize)
	worker := capture.NewWorker(dispatcher, engineCfg.MaxFrameSize, capCfg.QueueLimit)

	eventBus.Subscribe(events.EventConfigChanged, "runtime", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.ConfigChangedPayload)
		if !ok || p.Section != "engine" {
			return nil
		}
		if p.Key == "only_record_target" {
			runtimeFlags.SetOnlyRecordTarget(cfg.GetEngine().OnlyRecordTarget)
			log.Info().Uint64("uid", runtimeFlags.OnlyRecordTarget()).Msg("record target changed")
		}
		return nil
	})

	healthMgr := health.NewManager(cfg, eventBus, worker)

	hub := api.NewHub()
	hub.Attach(eventBus)
	apiServer := api.NewServer(cfg, eventBus, hub, api.Deps{
		Stats:    store,
		Sessions: sessions,
		Modules:  loadouts,
		Tracker:  instances,
		Pipeline: worker,
		Health:   healthMgr,
		Decoder:  registry,
		Version:  AppVersion,
	})

	var pruner scheduler.Pruner
	if sessionsDB != nil {
		pruner = sessionsDB
	}
	sched := scheduler.NewScheduler(cfg, store, pruner, hub)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetMQTT().Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, AppVersion, func() interface{} {
			live, retired := store.Counts()
			return map[string]interface{}{
				"session":  store.CurrentSession(),
				"instance": instances.Status(),
				"pipeline": worker.Stats(),
				"health":   healthMgr.Status(),
				"users":    live,
				"retired":  retired,
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		reasonMu sync.Mutex
		reason   = session.ReasonProcessExit
	)
	stop := func(r session.Reason) {
		reasonMu.Lock()
		reason = r
		reasonMu.Unlock()
		cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			if sig == syscall.SIGTERM {
				stop(session.ReasonSIGTERM)
			} else {
				stop(session.ReasonSIGINT)
			}
		case <-ctx.Done():
		}
	}()

	eventBus.Subscribe(events.EventShutdown, "main", func(context.Context, events.Event) error {
		log.Info().Msg("shutdown requested from console")
		stop(session.ReasonProcessExit)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gctx)
	})

	switch capCfg.Mode {
	case config.CaptureTCP:
		listener := network.NewTCPListener(capCfg.ListenAddr, worker)
		g.Go(func() error {
			return listener.Start(gctx)
		})
	case config.CapturePcap:
		replay := capture.NewPcapReplay(capCfg.PcapFile, capCfg.ServerPort, worker)
		g.Go(func() error {
			if err := replay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("file", capCfg.PcapFile).Msg("pcap replay failed")
			}
			return nil
		})
	default:
		log.Info().Msg("capture disabled, serving stored sessions only")
	}

	if cfg.GetAPI().Enabled {
		g.Go(func() error {
			if err := startWithRetry(gctx, "API server", apiServer.Start, 5); err != nil && gctx.Err() == nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
			return nil
		})
	}

	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})

	g.Go(func() error {
		healthMgr.Start(gctx)
		return nil
	})

	if mqttHandler != nil {
		g.Go(func() error {
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
			return nil
		})
	}

	if console {
		repl := cli.NewCLI(eventBus, store, sessions, os.Stdin, os.Stdout)
		go repl.Start(gctx)
	}

	waitErr := g.Wait()

	reasonMu.Lock()
	endReason := reason
	reasonMu.Unlock()

	log.Info().Str("reason", string(endReason)).Msg("initiating graceful shutdown...")
	if _, err := store.Shutdown(endReason); err != nil {
		log.Error().Err(err).Msg("failed to persist the final session")
	}
	if err := cache.ForceSave(); err != nil {
		log.Warn().Err(err).Msg("failed to save user cache")
	}

	done := make(chan struct{})
	go func() {
		eventBus.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("event handlers did not finish within 10 seconds")
	}

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

// startWithRetry retries startFn while the address is still held by a
// previous instance.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
