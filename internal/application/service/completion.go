package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/models/chat"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

const maxBackoffDelay = 60 * time.Second

// CompletionService wraps the chat backend with per-call deadlines and
// bounded exponential backoff. Transient failures (429, 5xx, timeouts)
// are retried; everything else surfaces immediately.
type CompletionService struct {
	backend chat.Chat
	cfg     config.CompletionConfig
}

// NewCompletionService creates the retrying completion client used by the
// whole pipeline.
func NewCompletionService(cfg *config.Config) (interfaces.CompletionClient, error) {
	backend, err := chat.NewChat(&chat.ChatConfig{
		BaseURL:   cfg.Completion.BaseURL,
		ModelName: cfg.Completion.Model,
		APIKey:    cfg.Completion.APIKey(),
	})
	if err != nil {
		return nil, err
	}
	return &CompletionService{backend: backend, cfg: cfg.Completion}, nil
}

// NewCompletionServiceWithBackend wires an explicit backend; used by tests
// and by per-tree counting decorators.
func NewCompletionServiceWithBackend(backend chat.Chat, cfg config.CompletionConfig) *CompletionService {
	return &CompletionService{backend: backend, cfg: cfg}
}

// ModelName returns the backing model identifier.
func (s *CompletionService) ModelName() string {
	return s.backend.GetModelName()
}

// Complete performs one completion with retries. An empty completion is
// retried once more, then reported as types.ErrEmptyCompletion.
func (s *CompletionService) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	messages := []chat.Message{}
	if req.System != "" {
		messages = append(messages, chat.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, chat.Message{Role: "user", Content: req.User})

	opts := &chat.ChatOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if opts.Temperature == 0 {
		opts.Temperature = s.cfg.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = s.cfg.MaxTokens
	}

	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var result *types.CompletionResult
	emptyRetried := false
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, err := s.backend.Chat(callCtx, messages, opts)
			if err != nil {
				return err
			}
			if strings.TrimSpace(resp.Content) == "" {
				return types.ErrEmptyCompletion
			}
			result = &types.CompletionResult{Text: resp.Content, Usage: resp.Usage}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.MaxAttempts)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(2*time.Second),
		retry.MaxDelay(maxBackoffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if err == types.ErrEmptyCompletion {
				// one extra shot for blank output, then give up
				if emptyRetried {
					return false
				}
				emptyRetried = true
				return true
			}
			return chat.IsTransientError(err)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			if suggested := chat.SuggestedRetryAfter(err); suggested > 0 {
				delay := time.Duration(suggested) * time.Second
				if delay > maxBackoffDelay {
					delay = maxBackoffDelay
				}
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			logger.Warnf(ctx, "completion attempt %d failed, retrying: %v", attempt+1, err)
		}),
	)
	if err != nil {
		if err == types.ErrEmptyCompletion {
			return nil, err
		}
		if chat.IsTransientError(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrExternalUnavailable, err)
		}
		return nil, err
	}
	CounterFromContext(ctx).AddCompletion(result.Usage)
	return result, nil
}
