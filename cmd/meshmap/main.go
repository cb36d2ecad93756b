package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshmap/internal/config"
	"meshmap/internal/domain"
	"meshmap/internal/handler"
	"meshmap/internal/hub"
	"meshmap/internal/mesh"
	"meshmap/internal/metrics"
	"meshmap/internal/repository"
	"meshmap/internal/repository/sqlite"
	"meshmap/internal/service"
	"meshmap/internal/transport"
	"meshmap/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "config file (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	statePath := flag.String("state", "", "mesh state file (overrides config)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting meshmap...")

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if path != "" {
		log.Printf("Config loaded: %s", path)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *statePath != "" {
		cfg.Mesh.StateFile = *statePath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	log.Printf("%s", cfg.Summary())

	mapperCfg, err := cfg.MapperConfig()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Mesh state: the routing table and instance/DAG directory
	var src mesh.Source = mesh.NewState(0, 0, 0)
	var loader service.StateLoader
	if cfg.Mesh.StateFile != "" {
		loader = func() (mesh.Source, error) {
			return mesh.LoadStateFile(cfg.Mesh.StateFile)
		}
		state, err := mesh.LoadStateFile(cfg.Mesh.StateFile)
		if err != nil {
			log.Fatalf("Failed to load mesh state: %v", err)
		}
		src = state
		log.Printf("Mesh state loaded: %s (%d routes)", cfg.Mesh.StateFile, state.UsedRoutes())
	} else {
		log.Println("No mesh state file configured, nothing will be probed")
	}

	identity, err := resolveIdentity(cfg.Mesh)
	if err != nil {
		log.Fatalf("Failed to resolve root address: %v", err)
	}

	// UDP transport
	udp, err := transport.Listen(uint16(cfg.Transport.ListenPort), uint16(cfg.Transport.ProbePort))
	if err != nil {
		log.Fatalf("Failed to open UDP socket: %v", err)
	}
	defer udp.Close()
	log.Printf("Listening for reports on %s", udp.LocalAddr())

	// Initialize event bus and metrics
	eventBus := service.NewEventBus()
	met := metrics.New()

	opts := []service.MapperOption{
		service.WithEventBus(eventBus),
		service.WithMetrics(met),
	}
	if cfg.ConsoleEnabled() {
		opts = append(opts, service.WithConsole(os.Stdout))
	}
	if loader != nil {
		opts = append(opts, service.WithStateLoader(loader))
	}

	mapper, err := service.NewMapper(mapperCfg, src, identity, udp, opts...)
	if err != nil {
		log.Fatalf("Failed to start mapper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize journal
	var journal repository.Journal
	if cfg.Journal.Path != "" {
		j, err := sqlite.New(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		journal = j
		if n, err := j.Count(ctx); err != nil {
			log.Printf("Journal opened: %s (count failed: %v)", cfg.Journal.Path, err)
		} else {
			log.Printf("Journal opened: %s, %d entries", cfg.Journal.Path, n)
		}

		journalChan := make(chan service.Event, 256)
		eventBus.Subscribe(journalChan)
		go service.RecordEvents(ctx, journalChan, journal)
	}

	// Reactor and its datagram feed
	datagrams := make(chan transport.Datagram, 64)
	go udp.ReadLoop(ctx, datagrams)

	mapperDone := make(chan error, 1)
	go func() {
		mapperDone <- mapper.Run(ctx, datagrams)
	}()

	// Reload the mesh state when the routing layer rewrites it
	if cfg.Mesh.StateFile != "" {
		w := watcher.New(cfg.Mesh.StateFile, mapper.Reload)
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Mesh state watcher stopped: %v", err)
			}
		}()
	}

	var server *http.Server
	if cfg.HTTPEnabled() {
		server = startHTTP(ctx, cfg.HTTP.Addr, mapper, journal, eventBus, met)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-mapperDone:
		log.Printf("Mapper stopped: %v", err)
	}

	log.Println("Shutting down...")
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}

	log.Println("meshmap stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// resolveIdentity prefers a configured root address over interface lookup
func resolveIdentity(m config.MeshConfig) (mesh.Identity, error) {
	if m.RootAddress != "" {
		addr, err := domain.ParseAddress(m.RootAddress)
		if err != nil {
			return nil, err
		}
		return mesh.StaticIdentity{Address: addr}, nil
	}
	if m.Interface != "" {
		return mesh.InterfaceIdentity{Name: m.Interface}, nil
	}
	return nil, errors.New("set mesh.root_address or mesh.interface")
}

func startHTTP(ctx context.Context, addr string, mapper *service.Mapper, journal repository.Journal,
	eventBus *service.EventBus, met *metrics.Metrics) *http.Server {
	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventChan:
				sseHub.Broadcast(event)
			}
		}
	}()

	topologySvc := service.NewTopologyService(mapper, journal)
	topologyHandler := handler.NewTopologyHandler(topologySvc)
	topologyHandler.SetReloader(mapper)

	// Setup routes
	mux := http.NewServeMux()
	topologyHandler.Register(mux)
	mux.Handle("GET /events", sseHub)
	mux.Handle("GET /metrics", met.Handler())

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:        addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: /events streams indefinitely
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	return server
}
