package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/offcache/offcache"
	"github.com/offcache/offcache/cache"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	versionTagFlag     string
	providerFlag       string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&versionTagFlag, "version-tag", "", "Cache generation tag (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Storage backend: memory, sqlite, leveldb or redis (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name for the sqlite provider")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("build", version).Logger()

	config, err := offcache.LoadConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	applyFlagOverrides(&config)
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	provider, err := newProvider(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create cache provider")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	worker, err := offcache.NewWorker(offcache.Config{
		Version:          config.Version,
		Cache:            provider,
		OriginURL:        *originURL,
		StaticAssets:     config.Precache,
		StreamingDomains: config.Streaming,
		ImageRefs:        config.ImageRefs,
		Logger:           &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create worker")
	}

	// install and activate before taking traffic,
	// then commit so readiness flips without waiting for anything else
	startupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := worker.Install(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := worker.Activate(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("Activate failed")
	}
	worker.Lifecycle().Commit()

	router := chi.NewRouter()
	router.Get("/-/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !worker.Lifecycle().Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	router.Post("/-/message", messageHandler(worker))
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/*", worker)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	log.Info().Msgf("Proxying port %v to %s (version tag '%s')", config.Port, config.Origin, config.Version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}

	if closer, ok := provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close cache provider")
		}
	}
}

// applyFlagOverrides lets command-line flags win over config file and env.
func applyFlagOverrides(config *offcache.FileConfig) {
	if originFlag != "" {
		config.Origin = originFlag
	}
	if versionTagFlag != "" {
		config.Version = versionTagFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if providerFlag != "" {
		config.Provider = providerFlag
	}
	if dbFilenameFlag != "" {
		config.DBFile = dbFilenameFlag
	}
}

func newProvider(config offcache.FileConfig) (cache.CacheProvider, error) {
	switch config.Provider {
	case "memory":
		return cache.NewMemCache(), nil
	case "sqlite", "":
		return cache.NewSQLiteCache(config.DBFile)
	case "leveldb":
		return cache.NewLevelDBCache(config.LevelDBPath)
	case "redis":
		return cache.NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", config.Provider)
	}
}

func messageHandler(worker *offcache.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg offcache.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid message", http.StatusBadRequest)
			return
		}
		if err := worker.HandleMessage(r.Context(), msg); err != nil {
			log.Error().Err(err).Str("type", msg.Type).Msg("Message failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
