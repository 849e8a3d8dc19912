// Copyright 2025 QueryGate
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"querygate/platform/archive"
	"querygate/platform/config"
	"querygate/platform/llm"
	"querygate/platform/repository"
	"querygate/platform/repository/postgres"
	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
	"querygate/platform/translator"

	// Provider factories register themselves on import.
	_ "querygate/platform/llm/anthropic"
	_ "querygate/platform/llm/bedrock"
)

// Run boots the service: configuration, storage, provider, pipeline,
// HTTP. It blocks until SIGINT/SIGTERM and then drains the audit sink.
func Run() error {
	log := logger.New("sandbox")
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	if cfg.Secrets.Provider == "aws" {
		sm, err := config.NewAWSSecretsManager(ctx, cfg.Secrets.Region, 0)
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, sm); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store, err := NewPostgresStore(db)
	if err != nil {
		return err
	}

	// Audit sink: database batches, optionally fanned out to object
	// storage for long-term retention.
	batchSink, err := NewBatchSink(db)
	if err != nil {
		return err
	}
	auditSink, err := buildAuditSink(ctx, cfg, batchSink)
	if err != nil {
		return err
	}
	defer func() { _ = auditSink.Close() }()

	// Per-entity repositories over the main database.
	repos := make([]repository.Repository, 0, len(cfg.Entities))
	for entity, table := range cfg.Entities {
		repo, err := postgres.New(db, entity, table)
		if err != nil {
			return fmt.Errorf("repository for %s: %w", entity, err)
		}
		repos = append(repos, repo)
	}
	registry, err := repository.NewRegistry(repos...)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	service := NewService(store, translator.New(provider), registry, auditSink, AuditConfig{
		MaxPayloadBytes: cfg.Audit.MaxPayloadBytes,
		SlowThreshold:   cfg.Audit.SlowThreshold,
	})

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("", "", "Redis unavailable, rate limiting falls back to store counts", map[string]interface{}{
				"error": err.Error(),
			})
		}
		counter := NewRedisCounter(client, &storeCounter{store: store})
		service.RateLimiter().SetCounter(counter)
		service.SetUsageRecorder(counter)
		defer func() { _ = client.Close() }()
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/prometheus", promhttp.Handler()).Methods("GET")
	handlers := NewAPIHandlers(service, []byte(cfg.Server.JWTSecret))
	handlers.SetDefaults(SubmitOptions{
		UseTemplates: cfg.Sandbox.UseTemplates,
		Mode:         types.SandboxMode(cfg.Sandbox.DefaultMode),
	})
	handlers.Register(router)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      corsMiddleware.Handler(router),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "QueryGate listening", map[string]interface{}{
			"port":     cfg.Server.Port,
			"entities": registry.Entities(),
			"provider": provider.Name(),
		})
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("", "", "Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildAuditSink optionally wraps the database sink with an object
// storage archive per configuration.
func buildAuditSink(ctx context.Context, cfg *config.Config, db AuditSink) (AuditSink, error) {
	var store archive.ObjectStore
	var err error

	switch cfg.Archive.Provider {
	case "":
		return db, nil
	case "s3":
		store, err = archive.NewS3Store(ctx, archive.S3Options{
			Bucket: cfg.Archive.Bucket,
			Region: cfg.Archive.Region,
		})
	case "gcs":
		store, err = archive.NewGCSStore(ctx, archive.GCSOptions{
			Bucket: cfg.Archive.Bucket,
		})
	case "azblob":
		store, err = archive.NewAzureBlobStore(archive.AzureBlobOptions{
			Container:   cfg.Archive.Bucket,
			AccountName: cfg.Archive.AccountID,
		})
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
	if err != nil {
		return nil, err
	}
	return archive.NewFanout(db, archive.NewSink(store, cfg.Archive.Prefix)), nil
}

func healthHandler(pinger interface{ Ping() error }) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := pinger.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"service":   "querygate",
			"timestamp": time.Now().UTC(),
		})
	}
}
