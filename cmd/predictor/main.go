package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"footpredict/internal/cache"
	"footpredict/internal/history"
	"footpredict/internal/model"
	"footpredict/internal/publish"
	"footpredict/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	retrainTimeout = 10 * time.Minute
	predictTimeout = 2 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "info"))}))
	slog.SetDefault(logger)

	redisAddr := getEnv("REDIS_ADDR", "redis:6379")
	databaseURL := os.Getenv("DATABASE_URL") // optional; empty = read history from Redis
	retrainSchedule := getEnv("RETRAIN_SCHEDULE", "@every 6h")
	predictInterval := getDurationEnv("PREDICT_INTERVAL", 10*time.Minute)
	announceWindow := getDurationEnv("ANNOUNCE_WINDOW", 24*time.Hour)
	halfLife := getDurationEnv("HALF_LIFE", 0)
	maxIterations := getIntEnv("TRAIN_MAX_ITERATIONS", 0) // 0 = model default

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	var store *history.Store
	if databaseURL != "" {
		var err error
		store, err = history.Connect(ctx, databaseURL)
		if err != nil {
			slog.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			slog.Error("postgres migrate failed", "error", err)
			os.Exit(1)
		}
		slog.Info("history source", "source", "postgres")
	} else {
		slog.Info("history source", "source", "redis", "key", cache.MatchesKey)
	}

	reader := cache.NewReader(rdb)
	snapshots := cache.NewSnapshotCache(rdb)
	producer := publish.NewProducer(rdb)
	svc := service.New(service.Options{HalfLife: halfLife, MaxIterations: maxIterations})

	// Warm start so predictions are served before the first retrain finishes.
	if snap, err := snapshots.Load(ctx); err != nil {
		slog.Warn("cached snapshot unusable", "error", err)
	} else if snap != nil && svc.Restore(snap) {
		slog.Info("snapshot restored from cache", "version", snap.Version(), "trained_at", snap.TrainedAt().Format(time.RFC3339))
	}

	loadMatches := func(ctx context.Context) ([]model.MatchObservation, error) {
		if store != nil {
			return store.LoadMatches(ctx, time.Time{})
		}
		return reader.ReadMatches(ctx)
	}

	retrain := func() {
		ctx, cancel := context.WithTimeout(ctx, retrainTimeout)
		defer cancel()

		matches, err := loadMatches(ctx)
		if err != nil {
			slog.Warn("history load failed, keeping current snapshot", "error", err)
			return
		}
		prev := svc.Snapshot()
		start := time.Now()
		snap, err := svc.Retrain(ctx, matches)
		if err != nil {
			slog.Warn("retrain failed, keeping current snapshot", "matches", len(matches), "error", err)
			return
		}
		d := snap.Diagnostics()
		slog.Info("retrain complete",
			"version", snap.Version(),
			"matches", d.Matches,
			"teams", snap.Registry().Len(),
			"iterations", d.Iterations,
			"converged", d.Converged,
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
		if !d.Converged {
			slog.Warn("retrain hit iteration cap", "version", snap.Version(), "iterations", d.Iterations)
		}

		if teams := snap.Registry().Teams(); len(teams) >= 2 {
			f := model.Fixture{Home: teams[0].ID, Away: teams[len(teams)-1].ID}
			if gap, err := model.CheckSimulation(snap, f, int64(snap.Version())); err != nil {
				slog.Warn("simulation check failed", "error", err)
			} else if gap > model.SimulationTolerance {
				slog.Warn("simulation disagrees with closed form", "version", snap.Version(), "gap", gap, "tolerance", model.SimulationTolerance)
			} else {
				slog.Debug("simulation check passed", "version", snap.Version(), "gap", gap)
			}
		}

		if prev != nil {
			fresh := model.PlayedAfter(matches, prev.Diagnostics().LatestMatch)
			if ev, err := model.Evaluate(prev, fresh); err == nil && ev.Matches > 0 {
				slog.Info("backtest of previous snapshot",
					"version", prev.Version(),
					"matches", ev.Matches,
					"accuracy", ev.Accuracy,
					"brier", ev.Brier,
					"log_loss", ev.LogLoss,
				)
			}
		}

		if err := snapshots.Save(ctx, snap); err != nil {
			slog.Warn("snapshot cache write failed", "error", err)
		}
		if err := producer.WriteModelInfo(ctx, snap.Info()); err != nil {
			slog.Warn("model info write failed", "error", err)
		}
	}

	predict := func() {
		ctx, cancel := context.WithTimeout(ctx, predictTimeout)
		defer cancel()

		fixtures, err := reader.ReadFixtures(ctx)
		if err != nil {
			slog.Warn("fixtures read failed", "error", err)
			return
		}
		if len(fixtures) == 0 {
			slog.Info("no upcoming fixtures")
			return
		}
		items, err := svc.PredictBatch(fixtures)
		if err != nil {
			slog.Warn("batch prediction failed", "fixtures", len(fixtures), "error", err)
			return
		}

		now := time.Now()
		var published, malformed int
		for i, it := range items {
			f := fixtures[i]
			if it.Err != nil {
				malformed++
				slog.Warn("fixture skipped", "fixture_id", f.ID, "error", it.Err)
				continue
			}
			p := *it.Prediction
			if p.FixtureID == "" {
				slog.Info("prediction without fixture id not stored", "home", p.Home, "away", p.Away)
				continue
			}
			if p.Cold() {
				slog.Info("cold prediction", "fixture_id", p.FixtureID, "home_fallback", p.HomeFallback, "away_fallback", p.AwayFallback)
			}
			if err := producer.WriteLatest(ctx, f, p); err != nil {
				slog.Warn("write latest prediction failed", "fixture_id", p.FixtureID, "error", err)
			}
			if store != nil {
				if err := store.SavePrediction(ctx, p, now); err != nil {
					slog.Warn("save prediction failed", "fixture_id", p.FixtureID, "error", err)
				}
			}

			if !inAnnounceWindow(f.Kickoff, now, announceWindow) {
				continue
			}
			sent, err := producer.AlreadySent(ctx, p.FixtureID)
			if err != nil {
				slog.Warn("already-sent check failed", "fixture_id", p.FixtureID, "error", err)
				continue
			}
			if sent {
				continue
			}
			if _, err := producer.Publish(ctx, f, p); err != nil {
				slog.Warn("publish prediction failed", "fixture_id", p.FixtureID, "error", err)
				continue
			}
			published++
			slog.Info("prediction published", "fixture_id", p.FixtureID, "home", p.Home, "away", p.Away, "outcome", p.Outcome, "confidence", p.Confidence)
		}
		slog.Info("predictor tick", "fixtures", len(fixtures), "malformed", malformed, "published", published)
	}

	sched := cron.New(cron.WithLogger(cronLogger{}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := sched.AddFunc(retrainSchedule, retrain); err != nil {
		slog.Error("invalid retrain schedule", "schedule", retrainSchedule, "error", err)
		os.Exit(1)
	}

	retrain()
	sched.Start()
	defer sched.Stop()
	slog.Info("predictor started", "retrain_schedule", retrainSchedule, "predict_interval", predictInterval.String())

	ticker := time.NewTicker(predictInterval)
	defer ticker.Stop()
	for {
		predict()
		select {
		case <-ctx.Done():
			slog.Info("predictor shutting down", "reason", ctx.Err())
			return
		case <-ticker.C:
			// loop
		}
	}
}

// inAnnounceWindow reports whether a fixture kicks off within window from now.
// Fixtures without a kickoff time are announced immediately.
func inAnnounceWindow(kickoff, now time.Time, window time.Duration) bool {
	if kickoff.IsZero() {
		return true
	}
	until := kickoff.Sub(now)
	return until > 0 && until <= window
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", defaultVal.String())
		return defaultVal
	}
	return d
}
