package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/cartonguide/internal/api"
	"github.com/banshee-data/cartonguide/internal/calibration"
	"github.com/banshee-data/cartonguide/internal/camera"
	"github.com/banshee-data/cartonguide/internal/config"
	"github.com/banshee-data/cartonguide/internal/db"
	"github.com/banshee-data/cartonguide/internal/framebuf"
	"github.com/banshee-data/cartonguide/internal/pipeline"
	"github.com/banshee-data/cartonguide/internal/robot"
	"github.com/banshee-data/cartonguide/internal/vision"
	"github.com/banshee-data/cartonguide/internal/version"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the station config JSON")
	listen       = flag.String("listen", "", "Listen address (overrides the config file)")
	devMode      = flag.Bool("dev", false, "Run in dev mode: still-image camera and no robot")
	disableRobot = flag.Bool("disable-robot", false, "Run without a robot controller; poses are never published")
	versionFlag  = flag.Bool("version", false, "Print version and exit")
)

// station holds everything main owns and must close.
type station struct {
	store   *calibration.Store
	cam     camera.Camera
	link    robot.Link
	counter *db.DB
	proc    *pipeline.Processor
	server  *api.Server
}

// options are the command-line overrides applied on top of the config file.
type options struct {
	dev          bool
	disableRobot bool
}

func (o options) robotType(cfg *config.StationConfig) string {
	if o.dev || o.disableRobot {
		return robot.TypeDisabled
	}
	return cfg.GetRobotType()
}

func (o options) cameraType(cfg *config.StationConfig) string {
	if o.dev {
		return camera.TypeStill
	}
	return cfg.GetCameraType()
}

func newStation(cfg *config.StationConfig, opts options) (*station, error) {
	s := &station{}
	var err error

	s.store, err = calibration.Load(cfg.GetCalibrationPath(), cfg.GetBandsPath(), cfg.GetProfilesPath())
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}

	s.cam, err = camera.New(opts.cameraType(cfg), camera.Options{
		Device:     cfg.GetCameraDevice(),
		StillImage: cfg.GetStillImage(),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open camera: %w", err)
	}

	s.link, err = robot.New(opts.robotType(cfg), cfg.GetRobotAddress(), robot.Options{
		Registers:        cfg.GetRegisters(),
		Timeout:          cfg.GetRobotTimeout(),
		ReadRetries:      cfg.GetRobotReadRetries(),
		BreakerThreshold: cfg.GetBreakerThreshold(),
		BreakerCooldown:  cfg.GetBreakerCooldown(),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect robot: %w", err)
	}

	s.counter, err = db.NewDB(cfg.GetCounterDBPath())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open counter database: %w", err)
	}

	frames := framebuf.NewMailbox[framebuf.Frame]()
	stats := pipeline.NewStats(pipeline.DefaultHistory)
	s.proc, err = pipeline.NewProcessor(pipeline.Config{
		Camera:           s.cam,
		Calibration:      s.store,
		Link:             s.link,
		Counter:          s.counter,
		Frames:           frames,
		Stats:            stats,
		Borders:          vision.DefaultBorders,
		MaxCluster:       cfg.GetMaxCluster(),
		FallbackHeightMm: cfg.GetFallbackHeightMm(),
		DefaultGain:      cfg.GetCameraGain(),
		Interval:         cfg.GetCycleInterval(),
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.server = api.NewServer(frames, stats, s.counter, api.Station{
		RobotType:  opts.robotType(cfg),
		CameraType: opts.cameraType(cfg),
		DevMode:    opts.dev,
		Bands:      s.store.Bands(),
		Profiles:   s.store.Profiles(),
	})
	return s, nil
}

// Close releases the camera, robot link, counter database and calibration
// matrices. It is safe on a partially built station.
func (s *station) Close() {
	if s.cam != nil {
		if err := s.cam.Close(); err != nil {
			log.Printf("camera close error: %v", err)
		}
	}
	if s.link != nil {
		if err := s.link.Close(); err != nil {
			log.Printf("robot link close error: %v", err)
		}
	}
	if s.counter != nil {
		if err := s.counter.Close(); err != nil {
			log.Printf("counter database close error: %v", err)
		}
	}
	if s.store != nil {
		s.store.Close()
	}
}

func (s *station) handler() http.Handler {
	mux := s.server.ServeMux()
	s.counter.AttachAdminRoutes(mux)
	return api.LoggingMiddleware(mux)
}

func loadConfig(path string) (*config.StationConfig, error) {
	if path == "" {
		return config.EmptyStationConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == config.DefaultConfigPath {
		log.Printf("no config at %s, using built-in defaults", path)
		return config.EmptyStationConfig(), nil
	}
	return config.LoadStationConfig(path)
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = listen
	}

	opts := options{dev: *devMode, disableRobot: *disableRobot}
	s, err := newStation(cfg, opts)
	if err != nil {
		log.Fatalf("failed to start station: %v", err)
	}
	defer s.Close()
	log.Printf("cartonguide %s: camera=%s robot=%s", version.String(), opts.cameraType(cfg), opts.robotType(cfg))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// guidance loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.proc.Run(ctx); err != nil {
			log.Printf("guidance loop error: %v", err)
		}
		log.Print("guidance routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: s.handler(),
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Open /feed streams are cut when the timeout expires.
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
	log.Printf("Graceful shutdown complete")
}
