package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/loom/internal/config"
	"github.com/agenthands/loom/internal/core"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/driver"
	"github.com/agenthands/loom/internal/graph"
	"github.com/agenthands/loom/internal/llm"
)

type Server struct {
	Pipeline *core.Pipeline
	Store    graph.Store
	Logger   *zap.Logger
}

// NewServer wires the store, the LLM client and the pipeline from config.
// Environment variables override the file so deployments can stay secretless.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	applyEnvOverrides(cfg)

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.NewClient(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	return &Server{
		Pipeline: core.NewPipeline(store, llmClient, cfg, logger),
		Store:    store,
		Logger:   logger,
	}, nil
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("GRAPH_BACKEND"); v != "" {
		cfg.Graph.Backend = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		cfg.Graph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		cfg.Graph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		cfg.Graph.Password = v
	}
}

func newStore(cfg *config.Config) (graph.Store, error) {
	var cache *graph.TTLCache
	if ttl := cfg.Graph.CacheTTL.Duration(); ttl > 0 {
		cache = graph.NewTTLCache(ttl)
	}

	switch cfg.Graph.Backend {
	case "", "memory":
		return graph.NewMemoryStore(cfg.Graph.StrengthIncrement, cache), nil
	case "memgraph":
		d, err := driver.NewMemgraphDriver(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Memgraph: %w", err)
		}
		if err := d.BuildIndices(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to build indices: %w", err)
		}
		return graph.NewMemgraphStore(d, cfg.Graph.StrengthIncrement, cache), nil
	default:
		return nil, fmt.Errorf("unsupported graph backend: %s", cfg.Graph.Backend)
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.Health)
	r.POST("/process", s.ProcessContext)
	r.GET("/entities", s.ListEntities)
	r.GET("/entities/:name", s.GetEntity)
	r.GET("/contexts/:id", s.GetContext)
	r.GET("/traces/:id", s.GetTrace)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ProcessRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func (s *Server) ProcessContext(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	source := model.SourceType(req.Source)
	if source == "" {
		source = model.SourceChat
	}

	result, err := s.Pipeline.Process(c.Request.Context(), req.Text, source)
	if err != nil {
		s.Logger.Error("failed to process context", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process context"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListEntities(c *gin.Context) {
	prefix := c.Query("prefix")
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	nodes, err := s.Store.ListEntities(c.Request.Context(), prefix, limit)
	if err != nil {
		s.Logger.Error("failed to list entities", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list entities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entities": nodes})
}

func (s *Server) GetEntity(c *gin.Context) {
	name := c.Param("name")

	node, err := s.Store.GetEntity(c.Request.Context(), name)
	if errors.Is(err, graph.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	if err != nil {
		s.Logger.Error("failed to get entity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get entity"})
		return
	}

	rels, err := s.Store.Relationships(c.Request.Context(), node.UUID)
	if err != nil {
		s.Logger.Error("failed to load relationships", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load relationships"})
		return
	}
	now := s.Pipeline.Now().UTC()
	for i := range rels {
		rels[i].Strength = graph.EffectiveStrength(rels[i].Strength, rels[i].LastSeen, now, s.Pipeline.DecayHalfLife)
	}

	c.JSON(http.StatusOK, gin.H{"entity": node, "relationships": rels})
}

func (s *Server) GetContext(c *gin.Context) {
	item, trace, err := s.Store.GetContext(c.Request.Context(), c.Param("id"))
	if errors.Is(err, graph.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "context not found"})
		return
	}
	if err != nil {
		s.Logger.Error("failed to get context", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"context": item, "trace": trace})
}

func (s *Server) GetTrace(c *gin.Context) {
	_, trace, err := s.Store.GetContext(c.Request.Context(), c.Param("id"))
	if errors.Is(err, graph.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
		return
	}
	if err != nil {
		s.Logger.Error("failed to get trace", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trace"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trace": trace})
}
