package linker

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"linker_index/internal/models"
)

// TypedMessageHandler decodes JSON messages into T before processing them.
type TypedMessageHandler[T any] struct {
	Validate func(msg *T) bool
	Process  func(ctx context.Context, msg *T) error
	// AlwaysMark marks undecodable or invalid messages so they are skipped.
	AlwaysMark bool
	Logger     *zap.Logger
}

func (h *TypedMessageHandler[T]) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		h.Logger.Warn("dropping undecodable message", zap.Error(err))
		return h.AlwaysMark, nil
	}

	if h.Validate != nil && !h.Validate(&msg) {
		return h.AlwaysMark, nil
	}

	if err := h.Process(ctx, &msg); err != nil {
		return false, err
	}
	return true, nil
}

type Ingester interface {
	Ingest(ctx context.Context, update models.LinkerUpdate) (models.IngestResult, error)
}

// NewUpdateHandler ingests each LinkerUpdate message. Reports without a url
// are skipped; ingestion failures are retried.
func NewUpdateHandler(index Ingester, logger *zap.Logger) *TypedMessageHandler[models.LinkerUpdate] {
	return &TypedMessageHandler[models.LinkerUpdate]{
		Validate: func(u *models.LinkerUpdate) bool {
			if strings.TrimSpace(u.URL) == "" {
				logger.Warn("dropping linker report without url")
				return false
			}
			return true
		},
		Process: func(ctx context.Context, u *models.LinkerUpdate) error {
			result, err := index.Ingest(ctx, *u)
			if err != nil {
				return err
			}
			logger.Debug("linker report ingested",
				zap.String("url", u.URL), zap.String("result", string(result)))
			return nil
		},
		AlwaysMark: true,
		Logger:     logger,
	}
}
