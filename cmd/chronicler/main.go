package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/config"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
	"github.com/chronicler-labs/chronicler/core/pkg/gate"
	"github.com/chronicler-labs/chronicler/core/pkg/ledger"
	"github.com/chronicler-labs/chronicler/core/pkg/merkle"
	"github.com/chronicler-labs/chronicler/core/pkg/observability"
	"github.com/chronicler-labs/chronicler/core/pkg/policy"
	"github.com/chronicler-labs/chronicler/core/pkg/ratelimit"
	"github.com/chronicler-labs/chronicler/core/pkg/registry"

	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := "doctor"
	if len(args) > 1 {
		cmd = args[1]
	}

	switch cmd {
	case "doctor":
		return runDoctor(stdout, stderr)
	case "demo":
		return runDemo(stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q (want doctor or demo)\n", cmd)
		return 2
	}
}

type node struct {
	db       *sql.DB
	registry *registry.InMemoryRegistry
	policies *policy.Service
	limiter  *ratelimit.Limiter
	gate     *gate.Gate
	ledger   *ledger.Ledger
	outbox   *audit.OutboxStore
}

func openDB(url string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", url)
	if err != nil {
		return nil, err
	}
	if strings.Contains(url, ":memory:") {
		// One in-memory database per connection otherwise.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// buildNode wires the full stack against one database.
func buildNode(ctx context.Context, cfg *config.Config, events audit.Logger) (*node, error) {
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	outbox, err := audit.NewOutboxStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing outbox: %w", err)
	}
	sinks := audit.MultiLogger{events, outbox}

	reg := registry.NewInMemoryRegistry()

	policyStore, err := policy.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing policy store: %w", err)
	}
	policies, err := policy.NewService(policyStore, reg, sinks)
	if err != nil {
		return nil, err
	}

	var stateStore ratelimit.StateStore
	switch {
	case cfg.RedisAddr != "":
		stateStore = ratelimit.NewRedisStateStore(cfg.RedisAddr, "", 0)
	case cfg.RateLimitDatabaseURL != "":
		pg, err := sql.Open("postgres", cfg.RateLimitDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening rate-limit database: %w", err)
		}
		pgStore, err := ratelimit.NewPostgresStateStore(pg)
		if err != nil {
			return nil, fmt.Errorf("initializing rate-limit store: %w", err)
		}
		stateStore = pgStore
	default:
		sqlStore, err := ratelimit.NewSQLStateStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing rate-limit store: %w", err)
		}
		stateStore = sqlStore
	}
	limiter := ratelimit.NewLimiter(stateStore)

	actionStore, err := ledger.NewSQLiteActionStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing action store: %w", err)
	}

	n := &node{
		db:       db,
		registry: reg,
		policies: policies,
		limiter:  limiter,
		gate:     gate.New(reg, policies, limiter, sinks),
		ledger:   ledger.New(actionStore, limiter, reg, sinks, ledger.WithBatchThreshold(cfg.BatchThreshold)),
		outbox:   outbox,
	}

	if cfg.PolicyProfilePath != "" {
		if _, err := policies.LoadProfiles(ctx, cfg.PolicyProfilePath); err != nil {
			return nil, fmt.Errorf("seeding policy profiles: %w", err)
		}
	}
	return n, nil
}

func runDoctor(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)

	n, err := buildNode(ctx, cfg, audit.NopLogger{})
	if err != nil {
		logger.Error("wiring failed", "error", err)
		return 1
	}
	defer n.db.Close()

	def, err := n.policies.GetPolicy(ctx, contracts.DefaultPolicyID)
	if err != nil {
		logger.Error("default policy missing", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "database: %s\n", cfg.DatabaseURL)
	fmt.Fprintf(stdout, "default policy: daily=%d cost=%d risk=%d cooldown=%ds\n",
		def.DailyLimit, def.MaxResourceCost, def.MaxRisk, def.CooldownSeconds)
	fmt.Fprintln(stdout, "ok")
	return 0
}

// runDemo exercises one full check -> log -> seal -> prove cycle.
func runDemo(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	cfg.DatabaseURL = "file::memory:"
	cfg.BatchThreshold = 4
	logger := observability.NewLogger(cfg.LogLevel)

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if obsCfg.Enabled {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	metrics, err := observability.NewProvider(ctx, obsCfg)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}
	defer func() { _ = metrics.Shutdown(ctx) }()

	n, err := buildNode(ctx, cfg, audit.MultiLogger{audit.NewLoggerWithWriter(stdout), metrics.Sink()})
	if err != nil {
		logger.Error("wiring failed", "error", err)
		return 1
	}
	defer n.db.Close()

	n.registry.RegisterAgent(registry.Agent{AgentID: "agent-demo", Active: true})
	n.registry.RegisterTool(registry.Tool{ToolID: "tool-demo", RiskLevel: 20, Active: true})

	for i := 0; i < 4; i++ {
		decision, err := n.gate.CheckActionAllowed(ctx, "agent-demo", "tool-demo", 250)
		if err != nil {
			logger.Error("access check failed", "error", err)
			return 1
		}
		if !decision.Allowed {
			fmt.Fprintf(stdout, "denied: %s\n", decision.Reason)
			continue
		}

		dataHash, err := merkle.DigestPayload(map[string]any{"input": i})
		if err != nil {
			logger.Error("payload digest failed", "error", err)
			return 1
		}
		action, err := n.ledger.LogAction(ctx, fmt.Sprintf("demo-%d", i), "agent-demo", "tool-demo", dataHash, contracts.StatusSuccess, 250)
		if err != nil {
			logger.Error("log action failed", "error", err)
			return 1
		}
		fmt.Fprintf(stdout, "logged action %d\n", action.Index)
	}

	// Threshold 4 sealed batch 1 automatically; prove the first action.
	batch, err := n.ledger.GetBatch(ctx, 1)
	if err != nil {
		logger.Error("batch missing", "error", err)
		return 1
	}
	action, err := n.ledger.GetAction(ctx, batch.StartIndex)
	if err != nil {
		logger.Error("action missing", "error", err)
		return 1
	}
	proof, err := n.ledger.BuildInclusionProof(ctx, batch.BatchID, action.Index)
	if err != nil {
		logger.Error("proof build failed", "error", err)
		return 1
	}
	ok, err := n.ledger.VerifyInclusion(ctx, batch.BatchID, action.Index, action, proof)
	if err != nil {
		logger.Error("proof verify errored", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "batch %d root %s inclusion=%v\n", batch.BatchID, batch.MerkleRoot, ok)
	if !ok {
		return 1
	}
	return 0
}
