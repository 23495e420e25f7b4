// Command logload drives the logger under configurable load. Producers are
// rate limited and run on a worker pool; completed log files are optionally
// uploaded to a bucket, and Prometheus metrics are served on METRICS_ADDR.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"

	"github.com/neehar-mavuduru/stagekit/asynclogger"
	"github.com/neehar-mavuduru/stagekit/buffer"
	"github.com/neehar-mavuduru/stagekit/connpool"
	"github.com/neehar-mavuduru/stagekit/threadpool"
	"github.com/neehar-mavuduru/stagekit/uploader"
)

func main() {
	var (
		duration = flag.Duration("duration", 0, "test duration (overrides LOADGEN_DURATION)")
		rps      = flag.Int("rps", 0, "target lines per second (overrides LOADGEN_RPS)")
		debug    = flag.Bool("debug", false, "enable debug diagnostics (overrides DIAG_LEVEL)")
	)
	flag.Parse()

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := LoadConfig(bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *duration > 0 {
		cfg.Duration = *duration
	}
	if *rps > 0 {
		cfg.RPS = *rps
	}
	if *debug {
		cfg.DiagLevel = "debug"
	}

	diag := newDiagLogger(cfg.DiagLevel, cfg.DiagFormat)
	diag.Info().
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int("threads", cfg.Threads).
		Int("rps", cfg.RPS).
		Dur("duration", cfg.Duration).
		Str("log_dir", cfg.Logger.Directory).
		Msg("Starting load generator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, diag); err != nil {
		diag.Fatal().Err(err).Msg("Load generator failed")
	}
}

func newDiagLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == "pretty" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(lvl).With().Timestamp().Str("service", "logload").Logger()
}

// sink is where producers send lines: one logger, or a manager keyed by event
type sink interface {
	write(event string, level asynclogger.Level, format string, args ...any)
	stats() asynclogger.StatsSnapshot
	close() error
}

type singleSink struct{ l *asynclogger.Logger }

func (s singleSink) write(_ string, level asynclogger.Level, format string, args ...any) {
	s.l.Write(level, format, args...)
}
func (s singleSink) stats() asynclogger.StatsSnapshot { return s.l.GetStatsSnapshot() }
func (s singleSink) close() error { return s.l.Shutdown() }

type eventSink struct{ m *asynclogger.LoggerManager }

func (s eventSink) write(event string, level asynclogger.Level, format string, args ...any) {
	s.m.Write(event, level, format, args...)
}
func (s eventSink) stats() asynclogger.StatsSnapshot { return s.m.GetStatsSnapshot() }
func (s eventSink) close() error { return s.m.Close() }

func run(ctx context.Context, cfg *Config, diag zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Uploader first so the logger can hand it completed files
	var up *uploader.Uploader
	if cfg.uploadEnabled() {
		var bucket uploader.Bucket
		if cfg.UploadDryRun {
			bucket = uploader.NewMemoryBucket()
		} else {
			gcs, err := uploader.NewGCSBucket(ctx, cfg.Upload)
			if err != nil {
				return err
			}
			bucket = gcs
		}
		var err error
		up, err = uploader.New(cfg.Upload, bucket, uploader.WithLogger(diag.With().Str("component", "uploader").Logger()))
		if err != nil {
			return err
		}
		up.Start()
		cfg.Logger.UploadChannel = up.GetUploadChannel()
	}

	logOpts := []asynclogger.Option{
		asynclogger.WithDiagnostics(diag.With().Str("component", "logger").Logger()),
	}
	var out sink
	if len(cfg.Events) > 0 {
		m, err := asynclogger.NewLoggerManager(cfg.Logger, logOpts...)
		if err != nil {
			return err
		}
		out = eventSink{m}
	} else {
		l := asynclogger.New(append(logOpts, asynclogger.WithMetrics(reg, "logload_logger"))...)
		if err := l.Init(cfg.Logger); err != nil {
			return err
		}
		out = singleSink{l}
	}

	// Staging buffers producers format payloads into
	buffers, err := connpool.Open(ctx, cfg.Buffers,
		func(context.Context) (*buffer.Buffer, error) { return buffer.New(cfg.LogSize + 64), nil },
		nil,
		connpool.WithLogger(diag))
	if err != nil {
		return err
	}
	defer buffers.Close()

	pool := threadpool.New(cfg.Threads,
		threadpool.WithLogger(diag.With().Str("component", "pool").Logger()),
		threadpool.WithMetrics(reg, "logload_pool"))

	srv := serveMetrics(cfg.MetricsAddr, reg, diag)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var submitted atomic.Int64
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	payload := randomPayload(cfg.LogSize)
	events := cfg.Events
	if len(events) == 0 {
		events = []string{""}
	}

	ticker := time.NewTicker(cfg.StatsPeriod)
	defer ticker.Stop()
	start := time.Now()

loop:
	for seq := int64(0); ; seq++ {
		if err := limiter.Wait(runCtx); err != nil {
			break loop
		}
		select {
		case <-ticker.C:
			logProgress(diag, out.stats(), pool.Stats(), time.Since(start))
		default:
		}

		event := events[seq%int64(len(events))]
		task := func() {
			err := buffers.Do(ctx, func(b *buffer.Buffer) error {
				defer b.RetrieveAll()
				b.AppendString(payload)
				out.write(event, levelFor(seq), "seq=%d payload=%s", seq, b.Peek())
				return nil
			})
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				diag.Warn().Err(err).Msg("producer failed")
			}
		}
		if err := pool.AddTask(task); err != nil {
			break loop
		}
		submitted.Add(1)
	}

	diag.Info().Int64("submitted", submitted.Load()).Msg("Load finished, draining")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := pool.ShutdownContext(shutdownCtx); err != nil {
		diag.Error().Err(err).Msg("worker pool did not drain")
	}
	if err := out.close(); err != nil {
		diag.Error().Err(err).Msg("failed to close logger")
	}
	if up != nil {
		if err := up.Stop(shutdownCtx); err != nil {
			diag.Error().Err(err).Msg("uploader did not finish")
		}
		s := up.GetStats()
		diag.Info().
			Int64("files", s.TotalFiles).
			Int64("successful", s.Successful).
			Int64("failed", s.Failed).
			Int64("bytes", s.TotalBytes).
			Msg("Upload summary")
	}
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}

	logProgress(diag, out.stats(), pool.Stats(), time.Since(start))
	return nil
}

func levelFor(seq int64) asynclogger.Level {
	switch {
	case seq%100 == 0:
		return asynclogger.LevelError
	case seq%20 == 0:
		return asynclogger.LevelWarn
	case seq%2 == 0:
		return asynclogger.LevelDebug
	default:
		return asynclogger.LevelInfo
	}
}

func randomPayload(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func serveMetrics(addr string, reg *prometheus.Registry, diag zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			diag.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	diag.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

func logProgress(diag zerolog.Logger, ls asynclogger.StatsSnapshot, ps threadpool.Stats, elapsed time.Duration) {
	perSec := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		perSec = float64(ls.LinesWritten) / secs
	}
	diag.Info().
		Int64("lines_total", ls.TotalLogs).
		Int64("lines_written", ls.LinesWritten).
		Int64("lines_filtered", ls.FilteredLogs).
		Int64("lines_dropped", ls.DroppedLogs).
		Int64("sync_fallbacks", ls.SyncFallbacks).
		Int64("rotations", ls.Rotations).
		Int64("bytes_written", ls.BytesWritten).
		Int("pending_tasks", ps.Pending).
		Int64("panicked_tasks", ps.Panicked).
		Float64("lines_per_sec", perSec).
		Msg("Progress")
}
