package gap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scholarai/gapfinder/internal/cache"
	"github.com/scholarai/gapfinder/internal/config"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
)

// ErrResultNotReady is returned by Result while the analysis is still running.
var ErrResultNotReady = errors.New("analysis result not yet available")

const statusTTL = 30 * time.Minute

// Orchestrator owns the full gap pipeline for an analysis: generation, the
// bounded fan-out of validate/expand pipelines, and final aggregation.
// Pipelines never share gap records, so per-gap state needs no locking;
// the rate limiter is the only cross-pipeline shared state.
type Orchestrator struct {
	generator *Generator
	validator *Validator
	expander  *Expander
	store     store.Store
	cache     cache.Cache
	cfg       config.PipelineConfig
	logger    *slog.Logger

	// OnResult, when set, is invoked with the terminal result of every
	// analysis. The queue consumer uses it to publish responses.
	OnResult func(models.AnalysisResult)
}

func NewOrchestrator(generator *Generator, validator *Validator, expander *Expander,
	st store.Store, ca cache.Cache, cfg config.PipelineConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		validator: validator,
		expander:  expander,
		store:     st,
		cache:     ca,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit accepts an analysis request, persists it, and dispatches the
// pipeline in a background goroutine. It returns only after the analysis has
// moved to PROCESSING, so callers that poll right away never observe a
// pre-dispatch state; they poll Result for the outcome. Resubmitting the same
// correlation ID restarts the stored analysis rather than creating a second.
func (o *Orchestrator) Submit(ctx context.Context, req models.AnalysisRequest) (*models.Analysis, error) {
	if req.PaperID == uuid.Nil {
		return nil, fmt.Errorf("invalid request: paper_id is required")
	}

	cfg := req.Config
	if cfg.MaxGaps <= 0 || cfg.MaxGaps > o.cfg.MaxGaps {
		cfg.MaxGaps = o.cfg.MaxGaps
	}
	if cfg.ValidationDepth == "" {
		cfg.ValidationDepth = o.cfg.ValidationDepth
	}

	now := time.Now().UTC()
	analysis := &models.Analysis{
		ID:            uuid.New(),
		PaperID:       req.PaperID,
		ExtractionID:  req.ExtractionID,
		CorrelationID: req.CorrelationID,
		RequestID:     req.RequestID,
		Status:        models.AnalysisStatusPending,
		Config:        cfg,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, err := o.store.UpsertAnalysis(ctx, analysis)
	if err != nil {
		return nil, fmt.Errorf("creating analysis: %w", err)
	}

	started := time.Now().UTC()
	if err := o.store.UpdateAnalysisStatus(ctx, stored.ID,
		models.AnalysisStatusProcessing, store.WithStartedAt(started)); err != nil {
		return nil, fmt.Errorf("starting analysis: %w", err)
	}
	stored.Status = models.AnalysisStatusProcessing
	stored.StartedAt = &started
	_ = o.cache.SetAnalysisStatus(ctx, stored.ID, models.AnalysisStatusProcessing, statusTTL)

	go o.run(stored)

	return stored, nil
}

// Result returns the terminal result of an analysis, or ErrResultNotReady
// while it is still in flight. The aggregate is rebuilt from stored gap
// state, so it survives cache eviction.
func (o *Orchestrator) Result(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResult, error) {
	if data, ok, err := o.cache.Get(ctx, cache.AnalysisResultKey(analysisID)); err == nil && ok {
		var result models.AnalysisResult
		if err := json.Unmarshal(data, &result); err == nil {
			return &result, nil
		}
	}

	analysis, err := o.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if !models.AnalysisTerminal(analysis.Status) {
		return nil, ErrResultNotReady
	}

	gaps, err := o.store.ListGapsByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("loading gaps: %w", err)
	}

	completedAt := analysis.UpdatedAt
	if analysis.CompletedAt != nil {
		completedAt = *analysis.CompletedAt
	}
	result := Aggregate(analysis, gaps, completedAt)
	return &result, nil
}

// run executes the pipeline for one analysis in a background goroutine.
// It recovers from panics and always leaves the analysis in a terminal state.
func (o *Orchestrator) run(analysis *models.Analysis) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AnalysisTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in analysis run", "error", r, "analysis_id", analysis.ID)
			o.finishFailed(analysis, fmt.Sprintf("panic: %v", r))
		}
	}()

	paper, err := o.store.GetPaperContent(ctx, analysis.PaperID, analysis.ExtractionID)
	if err != nil {
		o.finishFailed(analysis, fmt.Sprintf("fetching paper content: %v", err))
		return
	}

	gaps, err := o.generator.Generate(ctx, analysis.ID, paper, analysis.Config.MaxGaps)
	if err != nil {
		o.finishFailed(analysis, fmt.Sprintf("generating gaps: %v", err))
		return
	}
	if len(gaps) == 0 {
		o.finishFailed(analysis, "no gap candidates could be generated")
		return
	}

	if err := o.store.CreateGaps(context.Background(), gaps); err != nil {
		o.logger.Warn("persisting gap candidates failed", "analysis_id", analysis.ID, "error", err)
	}

	o.processAll(ctx, gaps, analysis.Config.ResultsPerProvider())

	result := Aggregate(analysis, gaps, time.Now().UTC())
	o.finish(analysis, result)
}

// processAll fans the validate/expand pipelines out in batches: at most
// BatchSize pipelines per batch, at most MaxConcurrentBatches batches in
// flight. Pipelines report outcomes through their gap records only; no
// error aborts a sibling.
func (o *Orchestrator) processAll(ctx context.Context, gaps []*models.Gap, resultsPerProvider int) {
	var eg errgroup.Group
	eg.SetLimit(o.cfg.MaxConcurrentBatches)

	for start := 0; start < len(gaps); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(gaps))
		batch := gaps[start:end]

		eg.Go(func() error {
			var wg sync.WaitGroup
			for _, g := range batch {
				wg.Add(1)
				go func(g *models.Gap) {
					defer wg.Done()
					o.runPipeline(ctx, g, resultsPerProvider)
				}(g)
			}
			wg.Wait()
			return nil
		})
	}

	_ = eg.Wait()
}

// runPipeline drives one gap from GENERATED to a terminal state. Every
// failure mode, including a panic, lands in ERROR on this gap alone.
func (o *Orchestrator) runPipeline(ctx context.Context, g *models.Gap, resultsPerProvider int) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in gap pipeline", "error", r, "gap_id", g.ID)
			g.Status = models.GapStatusError
			reason := fmt.Sprintf("panic: %v", r)
			g.ErrorReason = &reason
		}
		o.persistGap(g)
	}()

	if err := ctx.Err(); err != nil {
		g.Status = models.GapStatusError
		reason := "analysis deadline exceeded"
		g.ErrorReason = &reason
		return
	}

	o.validator.Validate(ctx, g, resultsPerProvider)

	if g.Status == models.GapStatusValid {
		o.expander.Expand(ctx, g)
	}

	// A deadline hit mid-validation surfaces as a context error inside the
	// validator; normalize the reason so callers see the timeout.
	if g.Status == models.GapStatusError && ctx.Err() != nil {
		reason := "analysis deadline exceeded"
		g.ErrorReason = &reason
	}
}

// persistGap writes the gap's terminal state. Persistence failures are
// logged, not propagated: the in-memory outcome still reaches the aggregate.
func (o *Orchestrator) persistGap(g *models.Gap) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.UpdateGap(ctx, g); err != nil {
		o.logger.Warn("persisting gap failed", "gap_id", g.ID, "error", err)
	}
}

// finish records the terminal aggregate on the analysis and notifies OnResult.
func (o *Orchestrator) finish(analysis *models.Analysis, result models.AnalysisResult) {
	ctx := context.Background()

	opts := []store.AnalysisUpdateOption{
		store.WithGapCounts(result.TotalGaps, result.ValidGaps),
		store.WithCompletedAt(*result.CompletedAt),
	}
	if result.Status == models.AnalysisStatusFailed {
		opts = append(opts, store.WithErrorMessage(result.Message))
	}
	if err := o.store.UpdateAnalysisStatus(ctx, analysis.ID, result.Status, opts...); err != nil {
		o.logger.Error("updating analysis status failed", "analysis_id", analysis.ID, "error", err)
	}

	_ = o.cache.SetAnalysisStatus(ctx, analysis.ID, result.Status, statusTTL)
	if data, err := json.Marshal(result); err == nil {
		_ = o.cache.Set(ctx, cache.AnalysisResultKey(analysis.ID), data, statusTTL)
	}

	o.logger.Info("analysis finished",
		"analysis_id", analysis.ID, "status", result.Status,
		"total_gaps", result.TotalGaps, "valid_gaps", result.ValidGaps)

	if o.OnResult != nil {
		o.OnResult(result)
	}
}

// finishFailed terminates the analysis without any gap outcomes.
func (o *Orchestrator) finishFailed(analysis *models.Analysis, message string) {
	completedAt := time.Now().UTC()
	result := models.AnalysisResult{
		AnalysisID:    analysis.ID,
		RequestID:     analysis.RequestID,
		CorrelationID: analysis.CorrelationID,
		Status:        models.AnalysisStatusFailed,
		Message:       "Analysis failed: " + message,
		Gaps:          []models.Gap{},
		CompletedAt:   &completedAt,
	}
	o.logger.Error("analysis failed", "analysis_id", analysis.ID, "message", message)
	o.finish(analysis, result)
}
