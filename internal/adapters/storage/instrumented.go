package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// Instrumented wraps an ObjectStorage, recording metrics and wrapping
// failures in domain.StorageError.
type Instrumented struct {
	inner   output.ObjectStorage
	metrics output.MetricsCollector
}

// NewInstrumented wraps inner.
func NewInstrumented(inner output.ObjectStorage, metrics output.MetricsCollector) *Instrumented {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Instrumented{inner: inner, metrics: metrics}
}

// List implements output.ObjectStorage.
func (s *Instrumented) List(ctx context.Context) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := s.inner.List(ctx)
	s.observe("list", start, err)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	return objects, nil
}

// Download implements output.ObjectStorage.
func (s *Instrumented) Download(ctx context.Context, key string, dest string) error {
	start := time.Now()
	err := s.inner.Download(ctx, key, dest)
	s.observe("download", start, err)
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: key, Err: err}
	}
	return nil
}

// Stat implements output.ObjectStorage. A missing object is an expected
// answer and counts as a successful operation.
func (s *Instrumented) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	start := time.Now()
	obj, err := s.inner.Stat(ctx, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		s.observe("stat", start, nil)
		return output.StorageObject{}, err
	}
	s.observe("stat", start, err)
	if err != nil {
		return output.StorageObject{}, &domain.StorageError{Operation: "stat", Key: key, Err: err}
	}
	return obj, nil
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStorageDuration(op, time.Since(start))
	s.metrics.IncStorageOperations(op, err == nil)
}
