package common

import (
	"context"
	"maps"
	"slices"

	"github.com/aiplusall/researchbench/internal/logger"
)

// MapSlice applies a transform to every element of a slice.
func MapSlice[A, B any](slice []A, transform func(A) B) []B {
	result := make([]B, len(slice))
	for i, v := range slice {
		result[i] = transform(v)
	}
	return result
}

// ChunkSlice splits a slice into chunks of at most size elements.
func ChunkSlice[T any](slice []T, size int) [][]T {
	if size <= 0 {
		return [][]T{slice}
	}
	chunks := make([][]T, 0, (len(slice)+size-1)/size)
	for start := 0; start < len(slice); start += size {
		end := min(start+size, len(slice))
		chunks = append(chunks, slice[start:end])
	}
	return chunks
}

// Deduplicate removes duplicates from a slice based on a key function
// T: the type of elements in the slice
// K: the type of key used for deduplication
func Deduplicate[T any, K comparable](keyFunc func(T) K, items ...T) []T {
	seen := make(map[K]T)
	for _, item := range items {
		key := keyFunc(item)
		if _, exists := seen[key]; !exists {
			seen[key] = item
		}
	}
	return slices.Collect(maps.Values(seen))
}

// PipelineInfo logs a pipeline step event with structured fields.
func PipelineInfo(ctx context.Context, step, action string, fields map[string]interface{}) {
	logger.GetLogger(ctx).WithField("step", step).WithField("action", action).WithFields(fields).Info("pipeline")
}

// PipelineWarn logs a pipeline step warning with structured fields.
func PipelineWarn(ctx context.Context, step, action string, fields map[string]interface{}) {
	logger.GetLogger(ctx).WithField("step", step).WithField("action", action).WithFields(fields).Warn("pipeline")
}

// PipelineError logs a pipeline step error with structured fields.
func PipelineError(ctx context.Context, step, action string, fields map[string]interface{}) {
	logger.GetLogger(ctx).WithField("step", step).WithField("action", action).WithFields(fields).Error("pipeline")
}
