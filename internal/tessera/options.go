// Package tessera assembles the document Q&A service.
package tessera

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	httpopts "github.com/tessera-ai/tessera/pkg/options/http"
	llmopts "github.com/tessera-ai/tessera/pkg/options/llm"
	logopts "github.com/tessera-ai/tessera/pkg/options/logger"
	milvusopts "github.com/tessera-ai/tessera/pkg/options/milvus"
	minioopts "github.com/tessera-ai/tessera/pkg/options/minio"
	redisopts "github.com/tessera-ai/tessera/pkg/options/redis"
)

// RetrievalOptions tunes chunking and hybrid retrieval.
type RetrievalOptions struct {
	// ChunkSize is the target chunk length in runes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between consecutive chunks in runes.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of chunks retrieved per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// DenseWeight is the dense leg's share in hybrid fusion, 0..1.
	DenseWeight float64 `json:"dense-weight" mapstructure:"dense-weight"`

	// EmbeddingDim is the embedding vector dimension.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// HyDE enables hypothetical-answer query rewriting.
	HyDE bool `json:"hyde" mapstructure:"hyde"`
}

// NewRetrievalOptions creates retrieval options with defaults.
func NewRetrievalOptions() *RetrievalOptions {
	return &RetrievalOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		TopK:         5,
		DenseWeight:  0.5,
		EmbeddingDim: 768, // nomic-embed-text dimension
		HyDE:         true,
	}
}

// CacheOptions configures the answer cache.
type CacheOptions struct {
	// Enabled toggles the cache. When disabled, or when Redis is down,
	// queries simply skip caching.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is the answer expiry.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewCacheOptions creates cache options with defaults.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "tessera:answers:",
	}
}

// Options contains all service options.
type Options struct {
	HTTP      *httpopts.Options        `json:"http" mapstructure:"http"`
	Log       *logopts.Options         `json:"log" mapstructure:"log"`
	Milvus    *milvusopts.Options      `json:"milvus" mapstructure:"milvus"`
	Redis     *redisopts.Options       `json:"redis" mapstructure:"redis"`
	Minio     *minioopts.Options       `json:"minio" mapstructure:"minio"`
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	Chat      *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	Retrieval *RetrievalOptions        `json:"retrieval" mapstructure:"retrieval"`
	Cache     *CacheOptions            `json:"cache" mapstructure:"cache"`

	// DBPath is the SQLite database location for metadata.
	DBPath string `json:"db-path" mapstructure:"db-path"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:      httpopts.NewOptions(),
		Log:       logopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Redis:     redisopts.NewOptions(),
		Minio:     minioopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		Retrieval: NewRetrievalOptions(),
		Cache:     NewCacheOptions(),
		DBPath:    "tessera.db",
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Milvus.AddFlags(fs, "milvus.")
	o.Redis.AddFlags(fs)
	o.Minio.AddFlags(fs, "minio.")
	o.Embedding.AddFlags(fs, "embedding.")
	o.Chat.AddFlags(fs, "chat.")
	o.addRetrievalFlags(fs)
	o.addCacheFlags(fs)
	fs.StringVar(&o.DBPath, "db-path", o.DBPath, "SQLite database path for metadata")
}

func (o *Options) addRetrievalFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Retrieval.ChunkSize, "retrieval.chunk-size", o.Retrieval.ChunkSize, "Target chunk size in runes")
	fs.IntVar(&o.Retrieval.ChunkOverlap, "retrieval.chunk-overlap", o.Retrieval.ChunkOverlap, "Overlap between chunks in runes")
	fs.IntVar(&o.Retrieval.TopK, "retrieval.top-k", o.Retrieval.TopK, "Number of chunks retrieved per query")
	fs.Float64Var(&o.Retrieval.DenseWeight, "retrieval.dense-weight", o.Retrieval.DenseWeight, "Dense leg weight in hybrid fusion (0..1)")
	fs.IntVar(&o.Retrieval.EmbeddingDim, "retrieval.embedding-dim", o.Retrieval.EmbeddingDim, "Embedding vector dimension")
	fs.BoolVar(&o.Retrieval.HyDE, "retrieval.hyde", o.Retrieval.HyDE, "Enable hypothetical-answer query rewriting")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable answer caching")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Answer cache TTL")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Answer cache key prefix")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if err := o.HTTP.Validate(); err != nil {
		return err
	}
	if errs := o.Milvus.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if err := o.Redis.Validate(); err != nil {
		return err
	}
	if errs := o.Minio.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if errs := o.Embedding.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if errs := o.Chat.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if o.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk-size must be positive")
	}
	if o.Retrieval.ChunkOverlap < 0 || o.Retrieval.ChunkOverlap >= o.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk-overlap must be in [0, chunk-size)")
	}
	if o.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top-k must be positive")
	}
	if o.Retrieval.DenseWeight < 0 || o.Retrieval.DenseWeight > 1 {
		return fmt.Errorf("retrieval.dense-weight must be in [0, 1]")
	}
	if o.Retrieval.EmbeddingDim <= 0 {
		return fmt.Errorf("retrieval.embedding-dim must be positive")
	}
	if o.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	if err := o.HTTP.Complete(); err != nil {
		return err
	}
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	return o.Chat.Complete()
}
