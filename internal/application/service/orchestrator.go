package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aiplusall/researchbench/internal/common"
	"github.com/aiplusall/researchbench/internal/config"
	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/tracing"
	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// extensionTask is one pending extension on the explicit worklist. The
// worklist replaces recursion so breadth cannot grow the stack; depth is
// bounded by types.DepthCap.
type extensionTask struct {
	parent  *types.TreeNode
	keyword types.Keyword
}

// TreeOrchestratorService drives the six construction steps per short
// answer and fans distinct trees out over a worker pool. Workers share no
// mutable state except the sink.
type TreeOrchestratorService struct {
	cfg         *config.Config
	extractor   interfaces.ShortAnswerExtractor
	rootBuilder interfaces.RootQueryBuilder
	series      *SeriesExtenderService
	parallel    *ParallelExtenderService
	circular    interfaces.CircularGuard
	synthesizer interfaces.CompositeSynthesizer
	sink        interfaces.ResultSink
	pool        *ants.Pool
}

// NewTreeOrchestrator wires the orchestrator.
func NewTreeOrchestrator(
	cfg *config.Config,
	extractor interfaces.ShortAnswerExtractor,
	rootBuilder interfaces.RootQueryBuilder,
	series *SeriesExtenderService,
	parallel *ParallelExtenderService,
	circular interfaces.CircularGuard,
	synthesizer interfaces.CompositeSynthesizer,
	sink interfaces.ResultSink,
	pool *ants.Pool,
) interfaces.TreeOrchestrator {
	return &TreeOrchestratorService{
		cfg:         cfg,
		extractor:   extractor,
		rootBuilder: rootBuilder,
		series:      series,
		parallel:    parallel,
		circular:    circular,
		synthesizer: synthesizer,
		sink:        sink,
		pool:        pool,
	}
}

// Run consumes the document stream. Documents enter a bounded queue; the
// producer blocks when workers fall behind, keeping external-API pressure
// bounded. Results reach the sink in completion order.
func (s *TreeOrchestratorService) Run(ctx context.Context, docs interfaces.DocumentProvider) (*interfaces.RunSummary, error) {
	queue := make(chan *types.Document, s.cfg.Tree.QueueSize)

	summary := &interfaces.RunSummary{}
	var summaryMu sync.Mutex
	var wg sync.WaitGroup

	workerCount := s.cfg.Tree.WorkerCount
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		worker := func() {
			defer wg.Done()
			for doc := range queue {
				s.processDocument(ctx, doc, summary, &summaryMu)
			}
		}
		if err := s.pool.Submit(worker); err != nil {
			wg.Done()
			close(queue)
			return nil, fmt.Errorf("submit worker: %w", err)
		}
	}

	var produceErr error
	for {
		doc, err := docs.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				produceErr = fmt.Errorf("read document: %w", err)
			}
			break
		}
		select {
		case queue <- doc:
		case <-ctx.Done():
			produceErr = ctx.Err()
		}
		if produceErr != nil {
			break
		}
	}
	close(queue)
	wg.Wait()

	logger.Infof(ctx, "run complete: %d documents, %d trees emitted, %d candidates failed, %d total tokens",
		summary.DocumentsProcessed, summary.TreesEmitted, summary.CandidatesFailed, summary.Usage.TotalTokens)
	return summary, produceErr
}

// processDocument runs the six steps for one document: extract anchors,
// then build trees candidate by candidate until one emits.
func (s *TreeOrchestratorService) processDocument(ctx context.Context, doc *types.Document, summary *interfaces.RunSummary, summaryMu *sync.Mutex) {
	ctx = logger.WithFields(ctx, map[string]interface{}{
		"doc_id":   doc.DocID,
		"topic_id": doc.TopicID,
	})
	ctx, span := tracing.ContextWithSpan(ctx, "TreeOrchestrator.processDocument")
	defer span.End()
	span.SetAttributes(attribute.String("doc_id", doc.DocID))

	defer func() {
		summaryMu.Lock()
		summary.DocumentsProcessed++
		summaryMu.Unlock()
	}()

	answers, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		if errors.Is(err, types.ErrNoAnchorFound) {
			// zero extractable anchors produce zero trees and zero errors
			logger.Infof(ctx, "no anchors, skipping document")
			return
		}
		logger.Errorf(ctx, "extraction failed: %v", err)
		return
	}

	for _, shortAnswer := range answers {
		tree, err := s.buildTree(ctx, doc, shortAnswer)
		if err != nil {
			logger.Infof(ctx, "candidate %q failed: %v", shortAnswer.Text, err)
			summaryMu.Lock()
			summary.CandidatesFailed++
			summaryMu.Unlock()
			continue
		}
		if err := s.sink.WriteTree(ctx, tree); err != nil {
			logger.Errorf(ctx, "sink write failed for tree %s: %v", tree.ID, err)
			return
		}
		summaryMu.Lock()
		summary.TreesEmitted++
		summary.Usage.Add(types.TokenUsage{
			PromptTokens:     tree.Statistics.PromptTokens,
			CompletionTokens: tree.Statistics.CompletionTokens,
			TotalTokens:      tree.Statistics.TotalTokens,
		})
		summaryMu.Unlock()
		return
	}
	logger.Infof(ctx, "every anchor candidate failed, no tree emitted")
}

// buildTree runs S1–S6 for one anchor candidate. Any error discards all
// partial state; partial trees are never persisted.
func (s *TreeOrchestratorService) buildTree(parentCtx context.Context, doc *types.Document, shortAnswer types.ShortAnswer) (*types.AgentTree, error) {
	treeID := uuid.New().String()
	ctx := logger.WithField(parentCtx, "tree_id", treeID)

	timeout := time.Duration(s.cfg.Tree.TreeTimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	counter := &CallCounter{}
	ctx = WithCallCounter(ctx, counter)
	rec := NewTrajectory()
	started := time.Now()

	rec.Record(types.TrajectoryEntry{
		Step:             types.StepExtract,
		Layer:            0,
		CurrentAnswer:    shortAnswer.Text,
		GenerationMethod: types.GenerationRoot,
	})

	// S1+S2: root query with minimized keywords
	rootQuery, err := s.rootBuilder.BuildRoot(ctx, shortAnswer, shortAnswer.ContextWindow, rec)
	if err != nil {
		return nil, err
	}

	tree := &types.AgentTree{
		ID:              treeID,
		DocID:           doc.DocID,
		TopicID:         doc.TopicID,
		RootShortAnswer: shortAnswer,
		Root:            &types.TreeNode{Query: rootQuery, Branch: types.BranchRoot},
	}

	// S3: series extensions over the explicit worklist, depth-bounded
	worklist := make([]extensionTask, 0, len(rootQuery.EssentialKeywords()))
	for _, keyword := range rootQuery.EssentialKeywords() {
		worklist = append(worklist, extensionTask{parent: tree.Root, keyword: keyword})
	}
	for len(worklist) > 0 {
		task := worklist[0]
		worklist = worklist[1:]
		if task.parent.Query.Layer >= types.DepthCap {
			continue
		}
		node, ok, err := s.extendInto(ctx, tree, task, s.series, types.BranchSeries, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if node.Query.Layer < types.DepthCap {
			enqueued := 0
			for _, keyword := range node.Query.EssentialKeywords() {
				if enqueued >= s.cfg.Tree.SeriesLayer2Cap {
					break
				}
				if common.NormalizeAnswer(keyword.Text) == common.NormalizeAnswer(node.Query.Answer) {
					continue
				}
				worklist = append(worklist, extensionTask{parent: node, keyword: keyword})
				enqueued++
			}
		}
	}

	// S4: parallel extensions at layer 1, one per essential root keyword
	breadth := 0
	for _, keyword := range rootQuery.EssentialKeywords() {
		if breadth >= s.cfg.Tree.BreadthCapParallel {
			break
		}
		_, ok, err := s.extendInto(ctx, tree, extensionTask{parent: tree.Root, keyword: keyword}, s.parallel, types.BranchParallel, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			breadth++
		}
	}

	if len(tree.Root.Children) == 0 {
		rec.Record(types.TrajectoryEntry{
			Step:             types.StepAssemble,
			Layer:            0,
			GenerationMethod: types.GenerationRoot,
			Error:            "zero valid extensions",
		})
		tree.Trajectory = rec.Entries()
		return nil, fmt.Errorf("tree %s: zero valid extensions", treeID)
	}

	// S5: structural validation of the assembled tree
	if maxLayer := tree.MaxLayer(); maxLayer > types.DepthCap {
		return nil, fmt.Errorf("tree %s: depth %d exceeds cap", treeID, maxLayer)
	}
	sweep, err := s.circular.Sweep(ctx, tree)
	if err != nil {
		return nil, err
	}
	rec.Record(types.TrajectoryEntry{
		Step:             types.StepAssemble,
		Layer:            tree.MaxLayer(),
		Validation:       sweep,
		GenerationMethod: types.GenerationRoot,
		APICallCount:     counter.CompletionCalls(),
		ElapsedMS:        time.Since(started).Milliseconds(),
	})
	if failed, bad := types.FirstFailed(sweep); bad {
		return nil, fmt.Errorf("tree %s: end-of-tree sweep found %s: %s", treeID, failed.Gate, failed.Detail)
	}

	// S6: composite synthesis
	composites, flags, err := s.synthesizer.Synthesize(ctx, tree)
	if err != nil {
		return nil, err
	}
	tree.Composites = composites
	tree.FallbackFlags = flags
	rec.Record(types.TrajectoryEntry{
		Step:             types.StepSynthesize,
		Layer:            tree.MaxLayer(),
		GenerationMethod: types.GenerationRoot,
		Validation: []types.GateResult{
			{Gate: types.GateDirectMention, Passed: !flags.Fused, Detail: "fused composite"},
			{Gate: types.GateDirectMention, Passed: !flags.Ambiguated, Detail: "ambiguated composite"},
		},
		APICallCount: counter.CompletionCalls(),
		ElapsedMS:    time.Since(started).Milliseconds(),
	})

	tree.Trajectory = rec.Entries()
	tree.Statistics.NodeCount = len(tree.Nodes())
	tree.Statistics.ElapsedMS = time.Since(started).Milliseconds()
	for _, entry := range tree.Trajectory {
		if entry.Reject != types.RejectNone {
			tree.Statistics.RejectedCandidates++
		}
	}
	counter.Snapshot(&tree.Statistics)

	logger.Infof(ctx, "tree built: %d nodes, %d completion calls, %d rejected candidates",
		tree.Statistics.NodeCount, tree.Statistics.CompletionCalls, tree.Statistics.RejectedCandidates)
	return tree, nil
}

// extendInto runs one extender invocation and attaches the accepted child
// to the tree. A rejected candidate is skipped, not fatal.
func (s *TreeOrchestratorService) extendInto(ctx context.Context, tree *types.AgentTree, task extensionTask, extender interfaces.QueryExtender, branch types.BranchKind, rec interfaces.TrajectoryRecorder) (*types.TreeNode, bool, error) {
	outcome, err := extender.Extend(ctx, &interfaces.ExtendRequest{
		Parent:          task.parent,
		Keyword:         task.keyword,
		RootShortAnswer: tree.RootShortAnswer,
		Recorder:        rec,
	})
	if err != nil {
		return nil, false, err
	}
	if !outcome.Accepted() {
		return nil, false, nil
	}
	node := &types.TreeNode{
		Query:  outcome.Query,
		Parent: task.parent,
		Branch: branch,
	}
	task.parent.Children = append(task.parent.Children, node)
	return node, true, nil
}
