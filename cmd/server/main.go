// Package main implements the secrets-fleet server that distributes secret
// values to GitHub repositories on schedule or on manual dispatch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/Shavakan/secrets-fleet/pkg/config"
	gh "github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/logging"
	"github.com/Shavakan/secrets-fleet/pkg/metrics"
	"github.com/Shavakan/secrets-fleet/pkg/report"
	"github.com/Shavakan/secrets-fleet/pkg/run"
	"github.com/Shavakan/secrets-fleet/pkg/source"
)

const shutdownTimeout = 30 * time.Second

func initGitHubClient(ctx context.Context, cfg *config.Config) (*gh.Client, error) {
	if cfg.GitHubAppID != "" && cfg.GitHubAppPrivateKey != "" {
		client, err := gh.NewAppClient(ctx, cfg.GitHubAppID, cfg.GitHubAppPrivateKey, cfg.GitHubOwner)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub App client: %w", err)
		}
		log.Printf("GitHub App authentication enabled (app ID: %s)", cfg.GitHubAppID)
		return client, nil
	}
	log.Println("GitHub token authentication enabled")
	return gh.NewTokenClient(cfg.GitHubToken), nil
}

func initSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	srcCfg := source.LoadConfig()
	if err := srcCfg.Validate(); err != nil {
		return nil, fmt.Errorf("source config validation failed: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	src, err := source.NewSource(ctx, srcCfg, awsCfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Secret source initialized (backend: %s)", srcCfg.Backend)
	return src, nil
}

func initMetrics(ctx context.Context, cfg *config.Config) (metrics.Publisher, http.Handler) {
	var publishers []metrics.Publisher
	var prometheusHandler http.Handler

	if cfg.MetricsCloudWatchEnabled {
		namespace := cfg.MetricsNamespace
		if namespace == "" {
			namespace = "SecretsFleet"
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Printf("WARNING: Failed to load AWS config for CloudWatch metrics: %v (continuing without CloudWatch)", err)
		} else {
			publishers = append(publishers, metrics.NewCloudWatchPublisherWithNamespace(awsCfg, namespace))
			log.Println("CloudWatch metrics enabled")
		}
	}

	if cfg.MetricsPrometheusEnabled {
		namespace := cfg.MetricsNamespace
		if namespace == "" {
			namespace = "secrets_fleet"
		}
		prom := metrics.NewPrometheusPublisher(metrics.PrometheusConfig{Namespace: namespace})
		publishers = append(publishers, prom)
		prometheusHandler = prom.Handler()
		log.Println("Prometheus metrics enabled")
	}

	if cfg.MetricsDatadogEnabled {
		namespace := cfg.MetricsNamespace
		if namespace == "" {
			namespace = "secrets_fleet"
		}
		dd, err := metrics.NewDatadogPublisher(metrics.DatadogConfig{
			Address:   cfg.MetricsDatadogAddr,
			Namespace: namespace,
			Tags:      cfg.MetricsDatadogTags,
		})
		if err != nil {
			log.Printf("WARNING: Failed to create Datadog metrics publisher: %v (continuing without Datadog)", err)
		} else {
			publishers = append(publishers, dd)
			log.Printf("Datadog metrics enabled (addr: %s)", cfg.MetricsDatadogAddr)
		}
	}

	if len(publishers) == 0 {
		log.Println("No metrics backends enabled")
		return metrics.NoopPublisher{}, nil
	}

	if len(publishers) == 1 {
		return publishers[0], prometheusHandler
	}

	return metrics.NewMultiPublisher(publishers...), prometheusHandler
}

func initHistory(cfg *config.Config) *report.HistoryStore {
	if !cfg.HistoryEnabled {
		log.Println("Run history disabled")
		return nil
	}
	store := report.NewHistoryStore(cfg.ValkeyAddr, cfg.ValkeyPassword, cfg.ValkeyDB, cfg.HistoryTTL)
	log.Printf("Run history enabled (valkey: %s, ttl: %s)", cfg.ValkeyAddr, cfg.HistoryTTL)
	return store
}

// loadSecretSpecs resolves the configured secret list, preferring the
// manifest file over the inline name list.
func loadSecretSpecs(cfg *config.Config) ([]source.Spec, error) {
	if cfg.ManifestPath != "" {
		specs, err := source.LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest %s: %w", cfg.ManifestPath, err)
		}
		return specs, nil
	}
	if len(cfg.SecretNames) > 0 {
		return source.ParseList(cfg.SecretNames)
	}
	return nil, fmt.Errorf("no secrets configured: set SECRETS_FLEET_MANIFEST or SECRETS_FLEET_SECRETS")
}

// dispatchRequest is the POST /dispatch body. Absent fields fall back to
// the server configuration.
type dispatchRequest struct {
	DryRun  *bool    `json:"dry_run,omitempty"`
	Filter  string   `json:"filter,omitempty"`
	Repos   []string `json:"repos,omitempty"`
	Secrets []string `json:"secrets,omitempty"`
}

// buildRunRequest merges a dispatch body with the configured defaults.
func buildRunRequest(cfg *config.Config, defaults []source.Spec, body dispatchRequest) (run.Request, error) {
	req := run.Request{
		Trigger:            run.TriggerManual,
		DryRun:             cfg.DryRun,
		Filter:             gh.Filter(cfg.RepositoryFilter),
		SpecificRepos:      cfg.SpecificRepos,
		Secrets:            defaults,
		BatchSize:          cfg.BatchSize,
		MaxParallelBatches: cfg.MaxParallelBatches,
	}

	if body.DryRun != nil {
		req.DryRun = *body.DryRun
	}
	if body.Filter != "" {
		switch body.Filter {
		case config.FilterAll, config.FilterPublic, config.FilterPrivate, config.FilterSpecific:
			req.Filter = gh.Filter(body.Filter)
		default:
			return run.Request{}, fmt.Errorf("unknown filter %q", body.Filter)
		}
	}
	if len(body.Repos) > 0 {
		req.Filter = gh.FilterSpecific
		req.SpecificRepos = body.Repos
	}
	if req.Filter == gh.FilterSpecific && len(req.SpecificRepos) == 0 {
		return run.Request{}, fmt.Errorf("filter %q requires a repository list", config.FilterSpecific)
	}
	if len(body.Secrets) > 0 {
		specs, err := source.ParseList(body.Secrets)
		if err != nil {
			return run.Request{}, err
		}
		req.Secrets = specs
	}
	return req, nil
}

// makeDispatchHandler accepts manual run requests. Runs execute in the
// background on the server context so they survive the HTTP request but
// stop on shutdown.
func makeDispatchHandler(ctx context.Context, ctrl *run.Controller, cfg *config.Config, defaults []source.Spec, activeRuns *sync.WaitGroup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body dispatchRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, fmt.Sprintf("invalid dispatch body: %v", err), http.StatusBadRequest)
				return
			}
		}

		req, err := buildRunRequest(cfg, defaults, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		activeRuns.Add(1)
		go func() {
			defer activeRuns.Done()
			if _, err := ctrl.Execute(ctx, req); err != nil {
				log.Printf("Dispatched run failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "dispatched"})
	}
}

// makeReadinessHandler checks history store connectivity when history is
// enabled. Without history there is no stateful backend to verify.
func makeReadinessHandler(history *report.HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history != nil {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := history.Ping(pingCtx); err != nil {
				log.Printf("Readiness check failed: %v", err)
				http.Error(w, "History store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK\n")
	}
}

// makeRunsHandler serves persisted run summaries at /runs and /runs/{id}.
func makeRunsHandler(history *report.HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "Run history not enabled", http.StatusNotFound)
			return
		}

		runID := strings.TrimPrefix(r.URL.Path, "/runs")
		runID = strings.Trim(runID, "/")

		w.Header().Set("Content-Type", "application/json")
		if runID == "" {
			runs, err := history.List(r.Context())
			if err != nil {
				http.Error(w, "Failed to list runs", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string][]string{"runs": runs})
			return
		}

		summary, err := history.Get(r.Context(), runID)
		if err != nil {
			http.Error(w, "Failed to get run", http.StatusInternalServerError)
			return
		}
		if summary == nil {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// runScheduler dispatches rehearsal runs at the configured interval.
// Scheduled runs never mutate repositories.
func runScheduler(ctx context.Context, ctrl *run.Controller, cfg *config.Config, defaults []source.Spec) {
	log.Printf("Scheduler started (interval: %s)", cfg.ScheduleInterval)
	ticker := time.NewTicker(cfg.ScheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			req := run.Request{
				Trigger:            run.TriggerSchedule,
				Filter:             gh.Filter(cfg.RepositoryFilter),
				SpecificRepos:      cfg.SpecificRepos,
				Secrets:            defaults,
				BatchSize:          cfg.BatchSize,
				MaxParallelBatches: cfg.MaxParallelBatches,
			}
			if _, err := ctrl.Execute(ctx, req); err != nil {
				log.Printf("Scheduled run failed: %v", err)
			}
		}
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logging.Init()
	log.Println("Starting secrets-fleet server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	secretSpecs, err := loadSecretSpecs(cfg)
	if err != nil {
		log.Fatalf("Failed to load secret specs: %v", err)
	}
	log.Printf("Managing %d secret(s)", len(secretSpecs))

	githubClient, err := initGitHubClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create GitHub client: %v", err)
	}

	src, err := initSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create secret source: %v", err)
	}
	defer src.Close()

	metricsPublisher, prometheusHandler := initMetrics(ctx, cfg)
	history := initHistory(cfg)

	ctrl := run.NewController(cfg.GitHubOwner, githubClient, src, metricsPublisher)
	ctrl.History = history

	var activeRuns sync.WaitGroup

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK\n")
	})

	mux.HandleFunc("/ready", makeReadinessHandler(history))

	if prometheusHandler != nil {
		mux.Handle(cfg.MetricsPrometheusPath, prometheusHandler)
		log.Printf("Prometheus metrics exposed at %s", cfg.MetricsPrometheusPath)
	}

	mux.HandleFunc("/dispatch", makeDispatchHandler(ctx, ctrl, cfg, secretSpecs, &activeRuns))
	mux.HandleFunc("/runs", makeRunsHandler(history))
	mux.HandleFunc("/runs/", makeRunsHandler(history))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.ScheduleInterval > 0 {
		go runScheduler(ctx, ctrl, cfg, secretSpecs)
	} else {
		log.Println("Scheduler disabled (no interval configured)")
	}

	go func() {
		log.Printf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, gracefully stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	activeRuns.Wait()

	if history != nil {
		if err := history.Close(); err != nil {
			log.Printf("History store close failed: %v", err)
		}
	}

	if err := metricsPublisher.Close(); err != nil {
		log.Printf("Metrics publisher close failed: %v", err)
	}

	log.Println("Server stopped")
}
