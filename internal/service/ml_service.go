package service

import (
	"context"
	"log/slog"
	"strings"

	"crimesleuth/internal/auth"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/mlclient"
)

// MLService proxies ad-hoc requests to the image analysis service.
type MLService interface {
	AnalyzeImage(ctx context.Context, actor auth.Principal, file FileUpload) (*mlclient.ImageAnalysis, error)
	Health(ctx context.Context) (*mlclient.Health, error)
}

type mlService struct {
	analyzer ImageAnalyzer
	logger   *slog.Logger
}

// NewMLService creates a new ML proxy service.
func NewMLService(analyzer ImageAnalyzer, logger *slog.Logger) MLService {
	return &mlService{analyzer: analyzer, logger: logger.With("component", "ml")}
}

// AnalyzeImage sends an uploaded image for analysis without recording anything.
func (s *mlService) AnalyzeImage(ctx context.Context, actor auth.Principal, file FileUpload) (*mlclient.ImageAnalysis, error) {
	if file.Body == nil {
		return nil, apperrors.Invalid("image is required")
	}
	if file.ContentType != "" && !strings.HasPrefix(file.ContentType, "image/") {
		return nil, apperrors.Invalid("image must be an image file, got %s", file.ContentType)
	}
	if s.analyzer == nil {
		return nil, apperrors.ErrMLUnavailable.WithCause(mlclient.ErrNotConfigured)
	}

	analysis, err := s.analyzer.AnalyzeImage(ctx, file.Filename, file.ContentType, file.Body)
	if err != nil {
		s.logger.WarnContext(ctx, "image analysis failed", "user_id", actor.ID, "error", err)
		return nil, apperrors.ErrMLUnavailable.WithCause(err)
	}
	return analysis, nil
}

// Health reports the analysis service's status.
func (s *mlService) Health(ctx context.Context) (*mlclient.Health, error) {
	if s.analyzer == nil {
		return nil, apperrors.ErrMLUnavailable.WithCause(mlclient.ErrNotConfigured)
	}
	h, err := s.analyzer.Health(ctx)
	if err != nil {
		return nil, apperrors.ErrMLUnavailable.WithCause(err)
	}
	return h, nil
}
