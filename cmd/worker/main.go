// Command worker is the worker-tier entrypoint: it dequeues jobs from the
// configured queue and drives each one through the Job Handler, persisting
// every step, attempt, context snapshot, and retrieval event as it runs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/flowforge/workflowengine/emit"
	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/job"
	"github.com/flowforge/workflowengine/knowledge"
	"github.com/flowforge/workflowengine/llm"
	"github.com/flowforge/workflowengine/llm/anthropic"
	"github.com/flowforge/workflowengine/llm/google"
	"github.com/flowforge/workflowengine/llm/openai"
	"github.com/flowforge/workflowengine/nodes"
	"github.com/flowforge/workflowengine/queue"
	"github.com/flowforge/workflowengine/store"
)

func main() {
	logger := newLogger()

	databaseURL := getenv("DATABASE_URL", "./workflowengine.db")
	queueURL := getenv("QUEUE_URL", "redis://localhost:6379/0")
	masterKey := os.Getenv("MASTER_ENCRYPTION_KEY")
	metricsAddr := getenv("METRICS_ADDR", ":9090")
	dequeueTimeout := getenvDuration("DEQUEUE_TIMEOUT", 5*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore := mustOpenStore(databaseURL, logger)
	defer closeStore()

	q, err := queue.NewRedisQueue(ctx, queueURL, getenv("QUEUE_KEY_PREFIX", "workflowengine:"))
	if err != nil {
		log.Fatalf("worker: connect queue: %v", err)
	}
	defer q.Close()

	router := mustBuildRouter(masterKey, logger)

	knowledgePort := knowledge.NewStore()

	registry := engine.NewRegistry()
	if err := nodes.Register(registry, nodes.Dependencies{Router: router, KnowledgePort: knowledgePort}); err != nil {
		log.Fatalf("worker: register node types: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := engine.NewPrometheusMetrics(reg)

	config := job.Config{
		MaxRetries:           getenvInt("CONTROL_MAX_RETRIES", 5),
		MaxLoops:             getenvInt("CONTROL_MAX_LOOPS", 50),
		RetrievalMaxRequests: getenvInt("RETRIEVAL_MAX_REQUESTS", 100),
		RetrievalMaxFailures: getenvInt("RETRIEVAL_MAX_FAILURES", 20),
		RetrievalMaxDuration: getenvDuration("RETRIEVAL_MAX_DURATION", 2*time.Minute),
	}

	handler := job.New(st, registry, knowledgePort, router, config, logger)
	handler.WithTraceFunc(emitTraceFunc(mustBuildEmitter(getenv("EMIT_BACKEND", "log"))))
	handler.WithMetrics(metrics)

	go serveMetrics(metricsAddr, reg, logger)

	runLoop(ctx, q, handler, dequeueTimeout, logger)
}

// emitTraceFunc adapts the engine's coarse-grained (reason, detail) tracer
// callback onto emit.Emitter's Event shape, reusing the package's
// structured log/JSON/OTel output instead of hand-rolling one here. The
// engine stamps executionId/nodeId/nodeType/sequence into detail alongside
// reason-specific data; those are lifted onto the Event's own fields and
// the rest passed through as Meta.
func emitTraceFunc(emitter emit.Emitter) func(string, map[string]interface{}) {
	return func(reason string, detail map[string]interface{}) {
		emitter.Emit(detailToEvent(reason, detail))
	}
}

func detailToEvent(reason string, detail map[string]interface{}) emit.Event {
	ev := emit.Event{Msg: reason}
	meta := make(map[string]interface{}, len(detail))
	for k, v := range detail {
		switch k {
		case "executionId":
			if s, ok := v.(string); ok {
				ev.ExecutionID = s
			}
		case "nodeId":
			if s, ok := v.(string); ok {
				ev.NodeID = s
			}
		case "nodeType":
			if s, ok := v.(string); ok {
				ev.NodeType = s
			}
		case "sequence":
			if n, ok := v.(int); ok {
				ev.Sequence = n
			}
		default:
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		ev.Meta = meta
	}
	return ev
}

// mustBuildEmitter selects the trace emitter backend from EMIT_BACKEND:
// "log" (default, human-readable or JSON per LOG_FORMAT), "otel" (spans on
// the global tracer provider), "buffered" (in-memory, queryable — intended
// for tests and local inspection rather than long-running workers), or
// "none" to disable trace emission entirely.
func mustBuildEmitter(backend string) emit.Emitter {
	switch backend {
	case "otel":
		tracer := otel.Tracer("workflowengine")
		return emit.NewOTelEmitter(tracer)
	case "buffered":
		return emit.NewBufferedEmitter()
	case "none":
		return emit.NewNullEmitter()
	default:
		return emit.NewLogEmitter(os.Stdout, getenv("LOG_FORMAT", "text") == "json")
	}
}

func runLoop(ctx context.Context, q queue.Port, handler *job.Handler, dequeueTimeout time.Duration, logger *logrus.Logger) {
	logger.Info("worker: listening for jobs")
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker: shutting down")
			return
		default:
		}

		j, err := q.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("worker: dequeue failed")
			continue
		}
		if j == nil {
			continue
		}

		entry := logger.WithFields(logrus.Fields{"executionId": j.ExecutionID, "workflowId": j.WorkflowID})
		if err := handler.Run(ctx, *j); err != nil {
			entry.WithError(err).Error("worker: job failed")
			_ = q.Fail(ctx, *j, j.RetryCount < 3)
			continue
		}
		entry.Info("worker: job completed")
		_ = q.Ack(ctx, *j)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.WithField("addr", addr).Info("worker: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("worker: metrics server stopped")
	}
}

// mustOpenStore builds the persistence Port for databaseURL: a "mysql://"
// or "mysql:"-prefixed URL selects the MySQL store (schema expected
// pre-provisioned), anything else is treated as a SQLite file path
// (auto-migrated on open).
func mustOpenStore(databaseURL string, logger *logrus.Logger) (store.Port, func()) {
	if strings.HasPrefix(databaseURL, "mysql://") || strings.HasPrefix(databaseURL, "mysql:") {
		dsn := strings.TrimPrefix(strings.TrimPrefix(databaseURL, "mysql://"), "mysql:")
		st, err := store.NewMySQLStore(dsn)
		if err != nil {
			log.Fatalf("worker: open mysql store: %v", err)
		}
		logger.Info("worker: using mysql persistence store")
		return st, func() { _ = st.Close() }
	}

	st, err := store.NewSQLiteStore(databaseURL)
	if err != nil {
		log.Fatalf("worker: open sqlite store: %v", err)
	}
	logger.WithField("path", databaseURL).Info("worker: using sqlite persistence store")
	return st, func() { _ = st.Close() }
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if getenv("LOG_FORMAT", "text") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func mustBuildRouter(masterKey string, logger *logrus.Logger) *llm.Router {
	var resolver llm.ApiKeyResolver
	if masterKey != "" {
		keyStore, err := llm.NewEncryptedKeyStore(masterKey)
		if err != nil {
			log.Fatalf("worker: build credential store: %v", err)
		}
		seedKeyStoreFromEnv(keyStore, logger)
		resolver = keyStore
	} else {
		logger.Warn("worker: MASTER_ENCRYPTION_KEY not set; LLM nodes will have no resolvable API keys")
		resolver = noKeysResolver{}
	}

	router := llm.NewRouter(resolver)
	router.Register("anthropic", func(apiKey, modelName string) llm.ChatModel { return anthropic.NewChatModel(apiKey, modelName) })
	router.Register("openai", func(apiKey, modelName string) llm.ChatModel { return openai.NewChatModel(apiKey, modelName) })
	router.Register("google", func(apiKey, modelName string) llm.ChatModel { return google.NewChatModel(apiKey, modelName) })
	return router
}

// seedKeyStoreFromEnv is a development convenience: DEFAULT_<PROVIDER>_API_KEY
// env vars are sealed into the store under a synthetic "default" user, so a
// single-tenant deployment doesn't need a credentials UI to exercise the
// llm node end to end.
func seedKeyStoreFromEnv(keyStore *llm.EncryptedKeyStore, logger *logrus.Logger) {
	for _, provider := range []string{"anthropic", "openai", "google"} {
		envName := "DEFAULT_" + strings.ToUpper(provider) + "_API_KEY"
		if key := os.Getenv(envName); key != "" {
			if err := keyStore.Set("default", provider, key); err != nil {
				logger.WithError(err).WithField("provider", provider).Warn("worker: failed to seed default API key")
			}
		}
	}
}

// noKeysResolver always reports no key available, so LLM nodes fail with a
// clear ProviderKeyMissingError instead of panicking when no master
// encryption key was configured.
type noKeysResolver struct{}

func (noKeysResolver) Resolve(context.Context, string, string) (string, error) { return "", nil }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
