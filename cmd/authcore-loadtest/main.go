// Command authcore-loadtest drives the session layer under concurrency and
// prints latency percentiles per phase. It seeds a population of sessions,
// then runs a validate phase (hot path of every guarded request) and a
// rotate phase (re-issue with the prior token revoked, the login path minus
// the hash).
//
// Configuration is taken from the environment:
//
//	LOADTEST_SESSIONS      sessions to seed (default 100000)
//	LOADTEST_CONCURRENCY   concurrent workers (default 256)
//	LOADTEST_OPS           operations per phase (default 200000)
//	LOADTEST_REDIS_ADDR    redis address; empty runs the in-memory store
//	LOADTEST_POSTGRES_DSN  postgres DSN; overrides the redis/memory choice
//	LOADTEST_PREFIX        redis key prefix (default "ac")
//	LOADTEST_IDLE_TIMEOUT  sliding window (default 30m)
//	LOADTEST_MAX_LIFETIME  absolute ceiling (default 12h)
package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/mwfields/authcore/session"
)

type config struct {
	Sessions    int           `env:"LOADTEST_SESSIONS" envDefault:"100000"`
	Concurrency int           `env:"LOADTEST_CONCURRENCY" envDefault:"256"`
	Ops         int           `env:"LOADTEST_OPS" envDefault:"200000"`
	RedisAddr   string        `env:"LOADTEST_REDIS_ADDR"`
	PostgresDSN string        `env:"LOADTEST_POSTGRES_DSN"`
	Prefix      string        `env:"LOADTEST_PREFIX" envDefault:"ac"`
	IdleTimeout time.Duration `env:"LOADTEST_IDLE_TIMEOUT" envDefault:"30m"`
	MaxLifetime time.Duration `env:"LOADTEST_MAX_LIFETIME" envDefault:"12h"`
}

type sessionState struct {
	subjectID string
	token     string
	mu        sync.Mutex
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.Sessions <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	var store session.Store
	switch {
	case cfg.PostgresDSN != "":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
			os.Exit(1)
		}
		sqlStore := session.NewSQLStore(db)
		if err := sqlStore.Bootstrap(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
			os.Exit(1)
		}
		store = sqlStore
		fmt.Println("using postgres")
	case cfg.RedisAddr != "":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
		})
		store = session.NewRedisStore(client, cfg.Prefix)
		fmt.Printf("using redis at %s\n", cfg.RedisAddr)
	default:
		store = session.NewMemoryStore(time.Minute)
		fmt.Println("using in-memory store")
	}
	defer store.Close()

	manager, err := session.NewManager(store, session.Config{
		IdleTimeout: cfg.IdleTimeout,
		MaxLifetime: cfg.MaxLifetime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager: %v\n", err)
		os.Exit(1)
	}

	states := make([]*sessionState, cfg.Sessions)
	fmt.Printf("seeding %d sessions...\n", cfg.Sessions)
	startSeed := time.Now()
	for i := range states {
		subject := uuid.NewString()
		record, err := manager.Create(ctx, subject, nil, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &sessionState{subjectID: subject, token: record.Token}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, manager, states, cfg.Ops, cfg.Concurrency)
	rotateStats := runRotatePhase(ctx, manager, states, cfg.Ops, cfg.Concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
}

func runValidatePhase(ctx context.Context, manager *session.Manager, states []*sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]

				state.mu.Lock()
				token := state.token
				state.mu.Unlock()

				t0 := time.Now()
				_, err := manager.Validate(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRotatePhase(ctx context.Context, manager *session.Manager, states []*sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				record, err := manager.Create(ctx, state.subjectID, nil, state.token)
				d := time.Since(t0)
				if err == nil {
					state.token = record.Token
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
