package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tutortrack/internal/config"
	"tutortrack/internal/evaluate"
	"tutortrack/internal/hub"
	"tutortrack/internal/httpmiddleware"
	"tutortrack/internal/logger"
	"tutortrack/internal/metrics"
	"tutortrack/internal/monitor"
	"tutortrack/internal/notify"
	"tutortrack/internal/queue"
	"tutortrack/internal/record"
	"tutortrack/internal/registry"
	"tutortrack/internal/schedule"
	"tutortrack/internal/session"
	"tutortrack/internal/store"
	"tutortrack/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	defer log.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.App, log *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.RegistryPath)
	if err != nil {
		return err
	}
	log.Info("course registry loaded",
		zap.String("path", cfg.RegistryPath),
		zap.Int("courses", reg.Len()))

	tracker := session.NewTracker(log, cfg.SessionTTL)
	tracker.StartJanitor(ctx, time.Hour)

	matcher := schedule.NewMatcher(reg, loc)
	eval := evaluate.New(log, loc, time.Duration(cfg.GraceMinutes)*time.Minute)

	csvStore, err := record.NewCSVStore(cfg.RecordsCSVPath)
	if err != nil {
		return err
	}
	var recStore record.Store = csvStore
	if cfg.RecordsJSONPath != "" {
		recStore = record.NewFanout(log, csvStore, record.NewJSONMirror(cfg.RecordsJSONPath))
	}

	var notifier notify.Notifier
	if cfg.SMTPHost != "" && cfg.OpsEmail != "" {
		notifier = notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.OpsEmail)
		log.Info("mail notifier configured", zap.String("ops_email", cfg.OpsEmail))
	} else {
		notifier = notify.NewLog(log)
		log.Info("mail not configured, escalations go to the log")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	} else {
		q = queue.NewInMemory(64)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	broadcasts := hub.New()

	mon := monitor.New(log, reg, tracker, notifier, eval, loc, cfg.MonitorSweepHour)
	mon.OnEscalation = m.Escalations.Inc
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	wh := webhook.New(webhook.Config{
		Log:       log,
		Tracker:   tracker,
		Matcher:   matcher,
		Eval:      eval,
		Store:     recStore,
		Queue:     q,
		Hub:       broadcasts,
		Monitor:   mon,
		Notifier:  notifier,
		Metrics:   m,
		Secret:    cfg.WebhookSecret,
		Staleness: stalenessWindow(cfg),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"redis":         redisClient.Healthy(c.Request.Context()),
			"courses":       reg.Len(),
			"open_sessions": tracker.Len(),
		})
	})

	r.POST("/v1/webhooks/meetings", wh.Handle)

	r.GET("/v1/records", func(c *gin.Context) {
		records, err := recStore.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		course := c.Query("course")
		date := c.Query("date")
		filtered := make([]record.Record, 0, len(records))
		for _, rec := range records {
			if course != "" && rec.CourseName != course {
				continue
			}
			if date != "" && rec.Date != date {
				continue
			}
			filtered = append(filtered, rec)
		}
		c.JSON(http.StatusOK, gin.H{"records": filtered})
	})

	r.GET("/v1/stream", func(c *gin.Context) {
		ch, cancel := broadcasts.Subscribe()
		defer cancel()
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case rec, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("record", rec)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})

	r.POST("/v1/registry/reload", func(c *gin.Context) {
		if err := reg.Reload(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": reg.Len()})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func stalenessWindow(cfg config.App) time.Duration {
	if !cfg.VerifyTimestamps {
		return 0
	}
	return cfg.StalenessWindow
}
