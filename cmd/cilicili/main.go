package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ytget/cilicili/internal/bilibili"
	"github.com/ytget/cilicili/internal/config"
	"github.com/ytget/cilicili/internal/download"
	"github.com/ytget/cilicili/internal/export"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/login"
	"github.com/ytget/cilicili/internal/metrics"
	"github.com/ytget/cilicili/internal/platform"
	"github.com/ytget/cilicili/internal/session"
	"github.com/ytget/cilicili/internal/transcode"
	"github.com/ytget/cilicili/internal/ui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.cilicili"
	AppName = "CiliCili"

	// metricsAddrEnv enables the Prometheus endpoint when set, e.g. 127.0.0.1:9464
	metricsAddrEnv = "CILICILI_METRICS_ADDR"
)

func main() {
	myApp := app.NewWithID(AppID)
	settings := config.NewSettings(myApp)

	xlog.Configure(xlog.Config{
		Level:   settings.GetLogLevel(),
		Console: true,
		Version: version,
	})
	logger := xlog.WithComponent("main")
	logger.Info().Str("version", version).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	myApp.Settings().SetTheme(ui.NewCompactTheme())
	if icon, err := ui.LoadLogoResource(); err == nil {
		myApp.SetIcon(icon)
	} else {
		logger.Warn().Err(err).Msg("failed to load app icon")
	}

	window := myApp.NewWindow(fmt.Sprintf("%s v%s", AppName, version))
	window.Resize(fyne.NewSize(ui.WindowWidth, ui.WindowHeight))

	m := metrics.New()
	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		srv := serveMetrics(addr, m, logger)
		defer shutdown(srv)
	}

	store := session.NewStore(newSessionStorage(myApp, settings, logger))
	if restored, err := store.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("session restore failed")
	} else if restored {
		logger.Info().Msg("session restored")
	}

	downloadsDir := settings.GetDownloadDirectory()
	if err := platform.CreateDirectoryIfNotExists(downloadsDir); err != nil {
		logger.Warn().Err(err).Str(xlog.FieldPath, downloadsDir).Msg("failed to ensure downloads dir")
	}

	client := bilibili.NewClient(bilibili.Options{
		RateLimit: rate.Limit(settings.GetRateLimit()),
	})
	transcoder := transcode.NewService(settings.GetFFmpegPath())
	fetcher := bilibili.NewStreamFetcher(client, transcoder, settings.GetDownloadDirectory)

	queue := download.NewQueue(fetcher, store, download.WithMetrics(m))
	controller := login.NewController(client, store,
		login.WithPollInterval(settings.GetPollInterval()),
		login.WithProfileFetcher(client),
		login.WithMetrics(m),
	)
	pipeline := export.NewPipeline(export.NewLocalBackend(transcoder))

	ui.NewRootUI(ctx, window, ui.Services{
		API:      client,
		Queue:    queue,
		Sessions: store,
		Login:    controller,
		Export:   pipeline,
		Settings: settings,
		Logger:   xlog.WithComponent("ui"),
	})

	go func() {
		<-ctx.Done()
		fyne.Do(myApp.Quit)
	}()

	window.ShowAndRun()
}

func newSessionStorage(a fyne.App, settings *config.Settings, logger zerolog.Logger) session.Storage {
	if settings.GetSessionStorage() == config.SessionEncryptedFile {
		path := settings.SessionFilePath()
		logger.Debug().Str(xlog.FieldPath, path).Msg("using encrypted session file")
		return session.NewFileStorage(path, session.MachineSecret(AppID))
	}
	return session.NewPreferencesStorage(a)
}

func serveMetrics(addr string, m *metrics.Metrics, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
