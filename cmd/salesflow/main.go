// Command salesflow runs the AI sales assistant API: an HTTP server exposing
// the SSE chat endpoint and session management backed by MongoDB, OpenRouter
// and the CRM API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/debug"
	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/salesflow/agent/agent"
	"github.com/salesflow/agent/config"
	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/crm"
	"github.com/salesflow/agent/httpapi"
	"github.com/salesflow/agent/llm/openrouter"
	"github.com/salesflow/agent/plan/analyzer"
	"github.com/salesflow/agent/store"
	"github.com/salesflow/agent/stream"
	"github.com/salesflow/agent/title"
	"github.com/salesflow/agent/toolargs"
	"github.com/salesflow/agent/tools"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	if *dbgF {
		cfg.Server.Debug = true
	}

	srv, cleanup, err := setup(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "service setup failed")
	}
	defer cleanup()

	var handler http.Handler = srv.Handler()
	if cfg.Server.Debug {
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", cfg.Server.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf(ctx, "failed to shutdown: %v", err)
	}
	log.Printf(ctx, "exited")
}

// setup wires the service dependencies and returns the HTTP API plus a
// cleanup function closing the outbound connections.
func setup(ctx context.Context, cfg *config.Config) (*httpapi.Server, func(), error) {
	mongoClient, err := mongo.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	cleanup := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Printf(ctx, "mongo disconnect failed: %v", err)
		}
	}

	st, err := store.New(store.Options{
		Client:   mongoClient,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	openaiCfg := openai.DefaultConfig(cfg.OpenRouter.APIKey)
	openaiCfg.BaseURL = cfg.OpenRouter.BaseURL
	llmClient, err := openrouter.New(openrouter.Options{
		Client:       openai.NewClientWithConfig(openaiCfg),
		DefaultModel: cfg.OpenRouter.DefaultModel,
		Limiter:      rate.NewLimiter(rate.Limit(5), 10),
		LogRequest: func(ctx context.Context, entry openrouter.RequestLog) {
			if err := st.LogLLMRequest(ctx, cfg.CRM.UserID, "", entry); err != nil {
				log.Printf(ctx, "llm request log failed: %v", err)
			}
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init llm client: %w", err)
	}

	crmClient, err := crm.New(crm.Options{
		BaseURL: cfg.CRM.BaseURL,
		APIKey:  cfg.CRM.Token,
		UserID:  cfg.CRM.UserID,
		LogRequest: func(ctx context.Context, entry crm.RequestLog) {
			if err := st.LogCRMRequest(ctx, cfg.CRM.UserID, "", entry); err != nil {
				log.Printf(ctx, "crm request log failed: %v", err)
			}
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init crm client: %w", err)
	}

	var vocab *toolargs.Vocabulary
	var mapper *toolargs.Mapper
	if cfg.VocabularyDir != "" {
		vocab, err = toolargs.LoadVocabulary(cfg.VocabularyDir)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load vocabulary: %w", err)
		}
		mapper, err = toolargs.NewMapper(toolargs.MapperOptions{Client: llmClient, Vocabulary: vocab})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	registry, err := tools.NewSalesTools(tools.SalesToolsOptions{
		CRM:        crmClient,
		LLM:        llmClient,
		UserID:     cfg.CRM.UserID,
		Vocabulary: vocab,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init tools: %w", err)
	}

	deps, err := analyzer.New(analyzer.Options{Client: llmClient})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	compressor, err := convo.NewCompressor(convo.CompressorConfig{
		MaxTotalTokens: cfg.Compression.MaxTotalTokens,
		TargetTokens:   cfg.Compression.TargetTokens,
		RecentWindow:   cfg.Compression.RecentWindow,
	}, llmClient)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init compressor: %w", err)
	}

	titles, err := title.New(title.Options{Client: llmClient})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	orch, err := agent.New(agent.Options{
		LLM:        llmClient,
		Tools:      registry,
		Store:      st,
		Analyzer:   deps,
		Mapper:     mapper,
		Compressor: compressor,
		Titles:     titles,
		Models:     cfg.OpenRouter.AgentModels,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var chat httpapi.ChatAgent = orch
	pingers := []httpapi.Pinger{st}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pulseSink, err := stream.NewPulseSink(stream.PulseOptions{
			Redis:            rdb,
			OperationTimeout: 5 * time.Second,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init pulse sink: %w", err)
		}
		chat = &fanoutAgent{orch: orch, pulse: pulseSink}
		pingers = append(pingers, redisPinger{rdb})
		mongoCleanup := cleanup
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				log.Printf(ctx, "redis close failed: %v", err)
			}
			mongoCleanup()
		}
	}

	srv, err := httpapi.New(httpapi.Options{
		Agent:          chat,
		Sessions:       st,
		DefaultUserID:  cfg.CRM.UserID,
		Pingers:        pingers,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

// fanoutAgent mirrors every workflow event to the Redis pulse stream so
// other instances can serve reconnecting SSE clients.
type fanoutAgent struct {
	orch  *agent.Orchestrator
	pulse stream.Sink
}

func (f *fanoutAgent) Chat(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error {
	return f.orch.Chat(ctx, userID, sessionID, message, stream.NewMultiSink(sink, f.pulse))
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Name() string { return "redis" }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
