package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linker_index/internal/models"
)

// Index is the webpage index the handlers serve.
type Index interface {
	Ingest(ctx context.Context, update models.LinkerUpdate) (models.IngestResult, error)
	Resolve(ctx context.Context, ref string) ([]models.ClientWebPage, error)
}

type Invalidator interface {
	Invalidate()
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	index  Index
	sites  Invalidator
	store  Pinger
	logger *zap.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(index Index, sites Invalidator, store Pinger, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handlers{index: index, sites: sites, store: store, logger: logger}

	registerWebPageRoutes(r, h)
	registerAdminRoutes(r, h)
	registerHealthRoutes(r, h)
	return r
}
