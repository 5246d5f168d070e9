package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/tuning"
	"pixelcraft.ai/internal/sim/world"
	"pixelcraft.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8080", "http listen address (empty to run headless)")
		worldName   = flag.String("world", "", "world name (default: tuning world.name)")
		seed        = flag.Int64("seed", 0, "override the world seed (0 keeps tuning)")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		catalogPath = flag.String("materials", "", "path to materials.json (default: <configs>/materials.json if present)")
		schemaPath  = flag.String("schema", "./schemas/materials.schema.json", "materials JSON schema")
		maxTicks    = flag.Uint64("ticks", 0, "stop after this many ticks (0 runs until signalled)")
		cameraX     = flag.Int("camera_x", 0, "initial camera x in global pixels")
		cameraY     = flag.Int("camera_y", 0, "initial camera y in global pixels")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof on the http address")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune, _ = tuning.Load("")
	}
	if *worldName != "" {
		tune.World.Name = *worldName
	}
	if *seed != 0 {
		tune.World.Seed = *seed
	}

	reg, err := loadRegistry(*configDir, *catalogPath, *schemaPath)
	if err != nil {
		logger.Fatalf("load materials: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.World.Name)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("world dir: %v", err)
	}

	sk, err := openSinks(worldDir, tune.World.Name, tune, reg, os.Getenv, logger)
	if err != nil {
		logger.Fatalf("open sinks: %v", err)
	}
	defer sk.Close()

	w, err := world.New(world.Config{
		Tuning:     tune,
		Dir:        worldDir,
		Registry:   reg,
		Ledger:     sk.ledger(),
		TickLogger: sk.tickLogger(),
		Logger:     log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetCamera(*cameraX, *cameraY)
	logger.Printf("world %q opened dir=%s array=%dx%d generator=%s seed=%d materials=%d",
		w.Meta().Name, worldDir, w.W, w.H, tune.World.Generator, tune.World.Seed, reg.Len())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := observer.NewServer(observer.Bootstrap(w), logger)
	rt := newRuntime(w, obs, sk, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return rt.run(gctx, *maxTicks)
	})
	if strings.TrimSpace(*addr) != "" {
		srv := &http.Server{
			Addr:              *addr,
			Handler:           newMux(rt, obs, *enablePprof),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			<-gctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			return srv.Shutdown(ctx2)
		})
		g.Go(func() error {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	runErr := g.Wait()
	if err := w.Close(); err != nil {
		logger.Printf("close world: %v", err)
	}
	if runErr != nil {
		logger.Printf("stopped: %v", runErr)
	}
	c := w.Counters()
	logger.Printf("stopped at tick %d generated=%d loaded=%d corrupt=%d writes=%d splits=%d",
		w.CurrentTick(), c.Generated, c.Loaded, c.Corrupt, c.ChunkWrites, c.Splits)
}

// loadRegistry prefers an explicit catalog, then <configs>/materials.json,
// then the built-in palette.
func loadRegistry(configDir, catalogPath, schemaPath string) (*materials.Registry, error) {
	path := strings.TrimSpace(catalogPath)
	if path == "" {
		def := filepath.Join(configDir, "materials.json")
		if _, err := os.Stat(def); err == nil {
			path = def
		}
	}
	if path == "" {
		return materials.DefaultRegistry(), nil
	}
	if _, err := os.Stat(schemaPath); err != nil {
		schemaPath = ""
	}
	return materials.LoadRegistry(path, schemaPath)
}

func newMux(rt *runtime, obs *observer.Server, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler())
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	}
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
