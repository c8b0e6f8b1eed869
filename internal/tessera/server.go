package tessera

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/tessera/biz"
	"github.com/tessera-ai/tessera/internal/tessera/handler"
	"github.com/tessera-ai/tessera/internal/tessera/router"
	"github.com/tessera-ai/tessera/internal/tessera/store"
	milvuscomp "github.com/tessera-ai/tessera/pkg/component/milvus"
	miniocomp "github.com/tessera-ai/tessera/pkg/component/minio"
	rediscomp "github.com/tessera-ai/tessera/pkg/component/redis"
	"github.com/tessera-ai/tessera/pkg/llm"
	"github.com/tessera-ai/tessera/pkg/pool"

	// Register LLM providers.
	_ "github.com/tessera-ai/tessera/pkg/llm/ollama"
	_ "github.com/tessera-ai/tessera/pkg/llm/openai"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// poolReleaseTimeout bounds how long shutdown waits for background work.
const poolReleaseTimeout = 30 * time.Second

// Server is the assembled tessera service.
type Server struct {
	httpServer *http.Server
	pools      *pool.Manager
	closers    []func()
}

// NewServer wires the service from the options.
func NewServer(ctx context.Context, opts *Options) (*Server, error) {
	logger.Info("Starting tessera service...")

	db, err := store.NewDB(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	logger.Infow("metadata database opened", "path", opts.DBPath)

	milvusClient, err := milvuscomp.New(opts.Milvus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Info("Milvus client initialized")

	minioClient, err := miniocomp.New(opts.Minio)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio: %w", err)
	}
	if err := minioClient.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	logger.Infow("object storage initialized", "bucket", opts.Minio.Bucket)

	var closers []func()
	closers = append(closers, func() { _ = milvusClient.Close(context.Background()) })

	// Redis is optional. A miss here degrades caching, never the service.
	cache := biz.NewAnswerCache(nil, nil)
	if opts.Cache.Enabled {
		redisClient, err := rediscomp.NewWithContext(ctx, opts.Redis)
		if err != nil {
			logger.Warnw("failed to connect to redis, answer cache disabled",
				"addr", opts.Redis.Addr(), "error", err.Error())
		} else {
			cache = biz.NewAnswerCache(redisClient.Client(), &biz.AnswerCacheConfig{
				TTL:       opts.Cache.TTL,
				KeyPrefix: opts.Cache.KeyPrefix,
			})
			closers = append(closers, func() { _ = redisClient.Close() })
			logger.Infow("answer cache initialized",
				"addr", opts.Redis.Addr(), "ttl", opts.Cache.TTL.String())
		}
	} else {
		logger.Info("Answer cache is disabled")
	}

	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("embedding provider initialized",
		"provider", opts.Embedding.Provider, "model", opts.Embedding.Model)

	chatProvider, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("chat provider initialized",
		"provider", opts.Chat.Provider, "model", opts.Chat.Model)

	pools := pool.NewManager()
	if err := pools.Register(pool.DefaultPool, pool.DefaultPoolConfig()); err != nil {
		return nil, fmt.Errorf("failed to create default pool: %w", err)
	}
	if err := pools.Register(pool.IngestPool, pool.IngestPoolConfig()); err != nil {
		return nil, fmt.Errorf("failed to create ingest pool: %w", err)
	}
	if err := pools.Register(pool.RebuildPool, pool.RebuildPoolConfig()); err != nil {
		return nil, fmt.Errorf("failed to create rebuild pool: %w", err)
	}

	collections := store.NewCollectionStore(db)
	docs := store.NewDocumentStore(db)
	chats := store.NewChatStore(db)
	vectors := store.NewMilvusStore(milvusClient)

	sparse := biz.NewSparseStore(minioClient)
	chunker := biz.NewChunker(opts.Retrieval.ChunkSize, opts.Retrieval.ChunkOverlap)
	loader := biz.NewLoader()

	var rewriter *biz.Rewriter
	if opts.Retrieval.HyDE {
		rewriter = biz.NewRewriter(chatProvider)
	} else {
		rewriter = biz.NewRewriter(nil)
	}

	retriever := biz.NewRetriever(vectors, sparse, embedProvider, rewriter, &biz.RetrieverConfig{
		TopK:        opts.Retrieval.TopK,
		DenseWeight: opts.Retrieval.DenseWeight,
	})
	synth := biz.NewSynthesizer(chatProvider, retriever, cache)
	stream := biz.NewStreamController(synth, chats)
	indexer := biz.NewIndexer(docs, vectors, minioClient, sparse, cache, embedProvider, chunker, loader, pools)

	svc := biz.NewService(collections, docs, chats, vectors, sparse, cache, indexer, synth, stream, opts.Retrieval.EmbeddingDim)
	logger.Info("Service layer initialized")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), router.RequestLogger())
	router.Register(engine, handler.New(svc))

	httpServer := &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	logger.Info("Tessera service is ready")
	return &Server{
		httpServer: httpServer,
		pools:      pools,
		closers:    closers,
	}, nil
}

// Run serves HTTP until the context is canceled or a termination signal
// arrives, then drains background pools and closes the clients.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP shutdown did not finish cleanly", "error", err.Error())
	}

	s.pools.ReleaseAll(poolReleaseTimeout)
	for _, closeFn := range s.closers {
		closeFn()
	}

	logger.Info("Shutdown complete")
	return nil
}
