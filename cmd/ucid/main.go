// Command ucid owns the UWB chip. It keeps the UCI session open, records
// control traffic, reopens the chip when the link drops and serves metrics
// and debug pages over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/uwb.hal/internal/config"
	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/fsutil"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/hal/grpcchip"
	"github.com/banshee-data/uwb.hal/internal/hal/simchip"
	"github.com/banshee-data/uwb.hal/internal/hal/uart"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
	"github.com/banshee-data/uwb.hal/internal/ucilog"
	"github.com/banshee-data/uwb.hal/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	listen      = flag.String("listen", "", "Admin and metrics listen address (overrides listen_addr)")
	transport   = flag.String("transport", "", "Chip transport: uart, grpc or sim (overrides transport)")
	serialPort  = flag.String("port", "", "Serial port for the uart transport (overrides serial_port)")
	debug       = flag.Bool("debug", false, "Enable the diag stream")
	trace       = flag.Bool("trace", false, "Enable the trace stream (one line per fragment)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath, isFlagSet("config"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	setupLogging(os.Stderr, *debug, *trace)
	log.Printf("ucid %s starting, transport=%s", version.String(), cfg.GetTransport())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	mode, err := ucilog.ParseMode(cfg.GetLogMode())
	if err != nil {
		log.Fatalf("log mode: %v", err)
	}
	var sinks []ucilog.Sink
	if dir := cfg.GetPcapDir(); dir != "" && mode != ucilog.ModeDisabled {
		sinks = append(sinks, ucilog.NewPcapSink(fsutil.OSFileSystem{}, dir, cfg.GetPcapMaxBytes(), cfg.GetPcapMaxFiles()))
	}
	var store *ucilog.Store
	if path := cfg.GetSQLitePath(); path != "" {
		store, err = ucilog.OpenStore(path)
		if err != nil {
			log.Fatalf("open packet store: %v", err)
		}
		defer store.Close()
		if mode != ucilog.ModeDisabled {
			sinks = append(sinks, store.Sink())
		}
	}

	svc, closeSvc, err := newService(cfg)
	if err != nil {
		log.Fatalf("chip service: %v", err)
	}
	defer closeSvc()

	events := dispatch.NewQueue[hal.Event]()
	adapter := hal.NewAdapter(svc, events, hal.Config{
		Logger:         ucilog.New(mode, sinks...),
		Metrics:        metrics,
		MaxPayloadSize: cfg.GetMaxPayloadSize(),
		MaxPacketSize:  cfg.GetMaxPacketSize(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// event consumer, which also drives recovery
	wg.Add(1)
	go func() {
		defer wg.Done()
		d := &daemon{adapter: adapter, events: events, backoff: cfg.GetRecoveryBackoff()}
		if err := d.run(ctx); err != nil {
			log.Printf("event loop: %v", err)
		}
		log.Print("event loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		adapter.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("attach packet store routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:              cfg.GetListenAddr(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("admin server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := adapter.Close(closeCtx); err != nil {
		log.Printf("close chip: %v", err)
	}
	events.Close()
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads path and applies the flag overrides. A missing file is
// only an error when explicit is set.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg := config.Empty()
	if _, err := os.Stat(path); err == nil || explicit {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if *listen != "" {
		cfg.ListenAddr = listen
	}
	if *transport != "" {
		cfg.Transport = transport
	}
	if *serialPort != "" {
		cfg.SerialPort = serialPort
	}
	return cfg, cfg.Validate()
}

// isFlagSet reports whether name was given on the command line.
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func setupLogging(w io.Writer, diag, trace bool) {
	var diagW, traceW io.Writer
	if diag {
		diagW = w
	}
	if trace {
		traceW = w
	}
	hal.SetLogWriters(w, diagW, traceW)
	ucilog.SetLogWriters(w, diagW, traceW)
}

// newService builds the chip service for the configured transport. The
// returned func releases anything the service holds.
func newService(cfg *config.Config) (hal.Service, func(), error) {
	nop := func() {}
	switch cfg.GetTransport() {
	case config.TransportUART:
		opts, err := uart.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			DataBits: cfg.GetDataBits(),
			StopBits: cfg.GetStopBits(),
			Parity:   cfg.GetParity(),
		}.Normalise()
		if err != nil {
			return nil, nil, err
		}
		return uart.Service{Path: cfg.GetSerialPort(), Options: opts}, nop, nil
	case config.TransportGRPC:
		svc := &grpcchip.Service{Target: cfg.GetGRPCTarget()}
		return svc, func() { svc.Close() }, nil
	case config.TransportSim:
		return hal.StaticService(simchip.New()), nop, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.GetTransport())
}
