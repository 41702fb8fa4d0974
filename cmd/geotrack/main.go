package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/geotrack/internal/annotate"
	"github.com/banshee-data/geotrack/internal/api"
	"github.com/banshee-data/geotrack/internal/config"
	"github.com/banshee-data/geotrack/internal/db"
	"github.com/banshee-data/geotrack/internal/fsutil"
	"github.com/banshee-data/geotrack/internal/geostore"
	"github.com/banshee-data/geotrack/internal/monitoring"
	"github.com/banshee-data/geotrack/internal/overlay"
	"github.com/banshee-data/geotrack/internal/pipeline"
	"github.com/banshee-data/geotrack/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "geotrack.db", "Path to the SQLite database")
	configPath  = flag.String("config", "", "Path to a tuning JSON file (defaults apply when empty)")
	imagesDir   = flag.String("images", "images", "Directory for uploaded object images")
	fixMaxAge   = flag.Duration("fix-max-age", 30*time.Second, "Location fixes older than this are ignored (0 keeps them forever)")
	cropMaxSide = flag.Int("crop-max-side", 512, "Longest side in pixels of stored object crops (0 keeps native size)")
	debugLog    = flag.String("debug-log", "", "File receiving pipeline ops/diag/trace logs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// envPrefix namespaces environment overrides: -fix-max-age is read from
// GEOTRACK_FIX_MAX_AGE.
const envPrefix = "GEOTRACK_"

func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// applyEnv sets every flag not given on the command line from its
// environment variable, when present. Command line values win.
func applyEnv(set *flag.FlagSet, lookup func(string) (string, bool)) error {
	explicit := make(map[string]bool)
	set.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var firstErr error
	set.VisitAll(func(f *flag.Flag) {
		if explicit[f.Name] || firstErr != nil {
			return
		}
		v, ok := lookup(envName(f.Name))
		if !ok {
			return
		}
		if err := set.Set(f.Name, v); err != nil {
			firstErr = fmt.Errorf("%s: %w", envName(f.Name), err)
		}
	})
	return firstErr
}

// app holds everything main wires together.
type app struct {
	db       *db.DB
	pipeline *pipeline.Pipeline
	hub      *overlay.Hub
	handler  http.Handler
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// newApp opens the database and builds the pipeline and HTTP handler.
func newApp(dbFile, tuningFile, images string, maxFixAge time.Duration, maxCropSide int) (*app, error) {
	tuning, err := loadTuning(tuningFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	database, err := db.NewDB(dbFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := geostore.NewSQLiteStore(database.DB, geostore.RetryPolicyFromTuning(tuning))
	uploader := geostore.NewFileUploader(fsutil.OSFileSystem{}, images, "/images")
	location := pipeline.NewLatestFix(maxFixAge, nil)
	hub := overlay.NewHub()

	p, err := pipeline.New(pipeline.Config{
		Tuning:     tuning,
		Repository: geostore.NewRepository(store, uploader),
		Location:   location,
		Annotator:  annotate.Cropper{MaxSide: maxCropSide},
		Publisher:  hub,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	mux := api.NewServer(p, location, store, hub).ServeMux()
	mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(images))))

	return &app{
		db:       database,
		pipeline: p,
		hub:      hub,
		handler:  api.LoggingMiddleware(mux),
	}, nil
}

// Close drains in-flight persistence and closes the database.
func (a *app) Close() error {
	a.hub.Close()
	a.pipeline.Wait()
	return a.db.Close()
}

func main() {
	flag.Parse()

	// A missing .env file is normal; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	if err := applyEnv(flag.CommandLine, os.LookupEnv); err != nil {
		log.Fatalf("invalid environment override: %v", err)
	}

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	if *debugLog != "" {
		f, err := os.OpenFile(filepath.Clean(*debugLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open debug log: %v", err)
		}
		defer f.Close()
		pipeline.SetLogWriter(f)
	} else {
		pipeline.SetLogWriters(os.Stderr, nil, nil)
	}
	monitoring.SetLogger(log.Printf)

	a, err := newApp(*dbPath, *configPath, *imagesDir, *fixMaxAge, *cropMaxSide)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	log.Printf("%s: database %s, session %s", version.String(), *dbPath, a.pipeline.Session())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
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

	if err := a.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
