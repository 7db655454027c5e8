package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tutortrack/internal/config"
	"tutortrack/internal/logger"
	"tutortrack/internal/queue"
	"tutortrack/internal/record"
	"tutortrack/internal/store"
)

// Worker consumes completed attendance records from the queue and mirrors
// them into Postgres for durable reporting. The CSV file written by the api
// process remains the authoritative copy.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	// The standalone worker only makes sense against a shared broker.
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	pg := record.NewPostgresStore(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started, waiting for records")
	for msg := range messages {
		if msg.Type != queue.TypeRecord {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Error("record unmarshal failed", zap.Error(err))
			continue
		}
		if err := pg.Upsert(ctx, rec); err != nil {
			log.Error("record mirror failed",
				zap.String("meeting_id", rec.MeetingID),
				zap.String("date", rec.Date),
				zap.Error(err))
			continue
		}
		log.Info("record mirrored",
			zap.String("meeting_id", rec.MeetingID),
			zap.String("course", rec.CourseName),
			zap.String("status", string(rec.Status)))
	}

	log.Info("worker stopped")
}
