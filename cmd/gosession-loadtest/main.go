package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagSessions    int
	flagConcurrency int
	flagOps         int
	flagRemoteShare float64
	flagClaims      bool
	flagRedisAddr   string
	flagPrefix      string
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "gosession-loadtest",
	Short: "Measure session establishment and sequence gating throughput",
	Long: "Establishes a population of sessions, drives reliable inbound traffic\n" +
		"through the sequence gate from concurrent workers, and closes every\n" +
		"session again, reporting latency percentiles per phase.\n\n" +
		"With --claims, remote identifiers are claimed in Redis; miniredis is used\n" +
		"when neither --redis-addr nor REDIS_ADDR is set.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&flagSessions, "sessions", 10000, "number of sessions to establish (at most 65535)")
	f.IntVar(&flagConcurrency, "concurrency", 64, "number of concurrent workers")
	f.IntVar(&flagOps, "ops", 200000, "gated messages to send")
	f.Float64Var(&flagRemoteShare, "remote-share", 0.5, "fraction of sessions with peer-assigned identifiers")
	f.BoolVar(&flagClaims, "claims", false, "claim remote identifiers in redis")
	f.StringVar(&flagRedisAddr, "redis-addr", "", "redis address; REDIS_ADDR or miniredis when empty")
	f.StringVar(&flagPrefix, "prefix", "gs", "claim key prefix")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "log engine events to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type sessionState struct {
	mu  sync.Mutex
	s   *session.Session
	seq uint16
}

func run(cmd *cobra.Command, _ []string) error {
	if flagSessions <= 0 || flagSessions > 65535 || flagConcurrency <= 0 || flagOps <= 0 {
		return fmt.Errorf("sessions must be in 1..65535, concurrency and ops must be > 0")
	}
	if flagRemoteShare < 0 || flagRemoteShare > 1 {
		return fmt.Errorf("remote-share must be between 0 and 1")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := zerolog.Nop()
	if flagVerbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	cfg := goSession.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Registry.MaxSessions = flagSessions
	cfg.Session.IdleTimeout = 0

	b := goSession.New().WithLogger(logger)

	if flagClaims {
		client, cleanup, err := openRedis(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		cfg.Claims.Enabled = true
		cfg.Claims.RedisPrefix = flagPrefix
		b = b.WithRedis(client)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states, establish := runEstablishPhase(ctx, engine)
	gate := runGatePhase(ctx, engine, states)
	closing := runClosePhase(ctx, engine, states)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "---- results ----")
	printStats(cmd, "establish", establish)
	printStats(cmd, "gate", gate)
	printStats(cmd, "close", closing)

	snap := engine.MetricsSnapshot()
	fmt.Fprintf(out, "accepted=%d rejected=%d collisions=%d claim_failures=%d\n",
		snap.Counters[goSession.MetricSequenceAccepted],
		snap.Counters[goSession.MetricSequenceRejected],
		snap.Counters[goSession.MetricIdentifierCollision],
		snap.Counters[goSession.MetricClaimFailure],
	)
	return nil
}

func openRedis(cmd *cobra.Command) (redis.UniversalClient, func(), error) {
	addr := flagRedisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(cmd.OutOrStdout(), "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(cmd.OutOrStdout(), "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runEstablishPhase(ctx context.Context, engine *goSession.Engine) ([]*sessionState, phaseStats) {
	remote := int(float64(flagSessions) * flagRemoteShare)
	// Remote identifiers come from the top of the space so the local
	// generator, counting up from 1, does not run into them.
	nextRemote := uint16(65535)

	states := make([]*sessionState, 0, flagSessions)
	latencies := make([]time.Duration, 0, flagSessions)
	var failures int64

	start := time.Now()
	for i := 0; i < flagSessions; i++ {
		req := goSession.EstablishRequest{
			Attributes: session.EncryptAttributes{IsSequenced: true},
		}
		if i < remote {
			req.RemoteID = nextRemote
			nextRemote--
		}
		t0 := time.Now()
		s, err := engine.Establish(ctx, req)
		latencies = append(latencies, time.Since(t0))
		if err != nil {
			failures++
			continue
		}
		states = append(states, &sessionState{s: s})
	}
	return states, computeStats(time.Since(start), latencies, failures)
}

func runGatePhase(ctx context.Context, engine *goSession.Engine, states []*sessionState) phaseStats {
	if len(states) == 0 {
		return phaseStats{}
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, flagOps)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < flagConcurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= flagOps {
					return
				}
				st := states[r.Intn(len(states))]

				st.mu.Lock()
				next := st.seq + 1
				t0 := time.Now()
				err := engine.CheckInbound(ctx, st.s, next, true)
				d := time.Since(t0)
				if err == nil {
					st.seq = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				st.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runClosePhase(ctx context.Context, engine *goSession.Engine, states []*sessionState) phaseStats {
	latencies := make([]time.Duration, 0, len(states))
	var failures int64

	start := time.Now()
	for _, st := range states {
		t0 := time.Now()
		err := engine.CloseSession(ctx, st.s.ID())
		latencies = append(latencies, time.Since(t0))
		if err != nil {
			failures++
		}
		st.s.Release()
	}
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(cmd *cobra.Command, name string, s phaseStats) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
