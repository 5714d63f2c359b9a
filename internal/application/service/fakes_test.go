package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aiplusall/researchbench/internal/types"
)

// scriptedCompletion routes prompts to canned replies by recognizing the
// template each probe or generator uses. Tests override individual
// behaviors through the hook fields.
type scriptedCompletion struct {
	mu    sync.Mutex
	calls int

	// questionsByAnswer maps an expected answer to the question the fake
	// "generates" for it.
	questionsByAnswer map[string]string
	// essentialByAnswer lists, per answer, the keyword markers whose
	// masking makes the question ambiguous.
	essentialByAnswer map[string][]string
	// answersByQuestion backs the uniqueness probe.
	answersByQuestion map[string]string

	fusedReply      string
	ambiguatedReply string

	// hooks for failure-injection tests; a nil hook keeps the default.
	onGenerate func(req *types.CompletionRequest) (string, bool)
	onExposure func(question string) (string, bool)
}

func (f *scriptedCompletion) ModelName() string { return "scripted" }

func (f *scriptedCompletion) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedCompletion) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	text, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	result := &types.CompletionResult{
		Text:  text,
		Usage: types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	CounterFromContext(ctx).AddCompletion(result.Usage)
	return result, nil
}

func (f *scriptedCompletion) respond(req *types.CompletionRequest) (string, error) {
	user := req.User
	switch {
	case strings.HasPrefix(user, "A keyword in the question below was replaced"):
		return f.maskVerdict(user), nil

	case strings.HasPrefix(user, "Answer the following question with a single short factual answer"):
		for question, answer := range f.answersByQuestion {
			if strings.Contains(user, question) {
				return "YES " + answer, nil
			}
		}
		return "NO", nil

	case strings.HasPrefix(user, "Do these two questions belong to the same narrow knowledge domain"):
		return "DIFFERENT", nil

	case strings.HasPrefix(user, "Two question/answer pairs"):
		return "INDEPENDENT", nil

	case strings.Contains(user, "Grade the risk"):
		if f.onExposure != nil {
			question := extractPromptField(user, "QUESTION: ")
			if reply, ok := f.onExposure(question); ok {
				return reply, nil
			}
		}
		return "SAFE", nil

	case strings.HasPrefix(user, "Answer this question in one short phrase"):
		return "UNKNOWN", nil

	case strings.HasPrefix(user, "Combine the following questions"):
		if strings.Contains(user, "abstract placeholders") {
			return f.ambiguatedReply, nil
		}
		return f.fusedReply, nil

	case strings.HasPrefix(user, "Write one factual question"):
		if f.onGenerate != nil {
			if reply, ok := f.onGenerate(req); ok {
				return reply, nil
			}
		}
		answer := extractPromptField(user, "ANSWER: ")
		question, ok := f.questionsByAnswer[answer]
		if !ok {
			return "", fmt.Errorf("no scripted question for answer %q", answer)
		}
		return question, nil
	}
	return "", fmt.Errorf("unrecognized prompt: %.80s", user)
}

// maskVerdict answers NO (keyword essential) when one of the answer's
// essential markers is missing from the masked question.
func (f *scriptedCompletion) maskVerdict(user string) string {
	masked := extractPromptField(user, "QUESTION: ")
	answer := ""
	if start := strings.Index(user, `with "`); start >= 0 {
		rest := user[start+len(`with "`):]
		if end := strings.Index(rest, `"`); end >= 0 {
			answer = rest[:end]
		}
	}
	for _, marker := range f.essentialByAnswer[answer] {
		if !strings.Contains(masked, marker) {
			return "NO"
		}
	}
	return "YES"
}

// extractPromptField pulls a single-line field out of a prompt template.
func extractPromptField(prompt, label string) string {
	start := strings.Index(prompt, label)
	if start < 0 {
		return ""
	}
	rest := prompt[start+len(label):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// failingSearch simulates a permanent search outage: empty results plus
// an unavailability error on every call.
type failingSearch struct {
	mu    sync.Mutex
	calls int
}

func (f *failingSearch) Search(ctx context.Context, query string, maxResults int) ([]*types.SearchSnippet, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, types.ErrExternalUnavailable
}

// snippetSearch returns the same canned snippets for every query.
type snippetSearch struct {
	snippets []*types.SearchSnippet
}

func (s *snippetSearch) Search(ctx context.Context, query string, maxResults int) ([]*types.SearchSnippet, error) {
	return s.snippets, nil
}

// captureSink records every emitted tree in memory.
type captureSink struct {
	mu    sync.Mutex
	trees []*types.AgentTree
}

func (s *captureSink) WriteTree(ctx context.Context, tree *types.AgentTree) error {
	s.mu.Lock()
	s.trees = append(s.trees, tree)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Close(ctx context.Context) error { return nil }

func (s *captureSink) Trees() []*types.AgentTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.AgentTree{}, s.trees...)
}

// sliceDocs serves documents from a slice.
type sliceDocs struct {
	docs []*types.Document
	next int
}

func (d *sliceDocs) Next(ctx context.Context) (*types.Document, error) {
	if d.next >= len(d.docs) {
		return nil, io.EOF
	}
	doc := d.docs[d.next]
	d.next++
	return doc, nil
}

func (d *sliceDocs) Close() error { return nil }
