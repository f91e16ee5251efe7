package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
)

// contentSnippetLimit caps the extracted text stored back onto the data
// source row; the full text only lives in the combined analyzer input.
const contentSnippetLimit = 1000

// IngestionWorker runs one ingestion job: extract every claimed source,
// analyze the combined text, persist the findings, and hand the terminal
// result to the notifier for fan-out.
type IngestionWorker struct {
	storage   interfaces.StorageManager
	extractor interfaces.ContentExtractor
	analyzer  interfaces.IngestionAnalyzer
	notifier  interfaces.IngestionNotifier
	logger    arbor.ILogger
}

// NewIngestionWorker creates the ingestion stage handler.
func NewIngestionWorker(storage interfaces.StorageManager, extractor interfaces.ContentExtractor, analyzer interfaces.IngestionAnalyzer, notifier interfaces.IngestionNotifier, logger arbor.ILogger) *IngestionWorker {
	return &IngestionWorker{
		storage:   storage,
		extractor: extractor,
		analyzer:  analyzer,
		notifier:  notifier,
		logger:    logger,
	}
}

// Handle processes one ingestion queue message. Per-source failures are
// recorded and never abort the siblings; only system-level failures (job or
// startup unloadable) return an error and let the queue retry.
func (w *IngestionWorker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	job, err := w.storage.JobStorage().GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load ingestion job %s: %w", msg.JobID, err)
	}
	payload, err := job.DecodeIngestionPayload()
	if err != nil {
		return err
	}
	startup, err := w.storage.StartupStorage().GetStartup(ctx, payload.StartupID)
	if err != nil {
		return fmt.Errorf("load startup %s: %w", payload.StartupID, err)
	}

	w.markStarted(ctx, job)
	if err := w.storage.StartupStorage().UpdateOverallStatus(ctx, startup.ID, models.StatusInProgress); err != nil {
		w.logger.Warn().Err(err).Str("startup_id", startup.ID).Msg("Failed to mark startup in progress")
	}

	result := w.processSources(ctx, startup, payload.DataSourceIDs)
	result.CompletedAt = time.Now().UTC()

	finalStatus := models.StatusCompleted
	if !result.HasSuccess() {
		finalStatus = models.StatusFailed
	}

	now := time.Now().UTC()
	job.Status = finalStatus
	job.CompletedAt = &now
	if len(result.Errors) > 0 {
		job.Logs = strings.Join(result.Errors, "\n")
	}
	if err := job.SetResult(result); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to serialize ingestion result")
	}
	if err := w.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("finalize ingestion job %s: %w", job.ID, err)
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("startup_id", startup.ID).
		Int("processed", result.TotalProcessed).
		Int("failed", result.TotalFailed).
		Msg("Ingestion job finished")

	// Fan-out failures never retry the ingestion job itself; the sources
	// are already consumed and the reconciler sweep recovers lost branches.
	if err := w.notifier.OnIngestionTerminal(ctx, job, result); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Ingestion terminal callback failed")
	}
	return nil
}

// processSources extracts every claimed source in enumeration order, runs
// the analyzer over the combined text, and persists the findings.
func (w *IngestionWorker) processSources(ctx context.Context, startup *models.Startup, sourceIDs []string) *models.IngestionResult {
	result := &models.IngestionResult{}
	sources := w.storage.DataSourceStorage()

	var sections []string
	var succeeded []string

	for _, id := range sourceIDs {
		source, err := sources.GetDataSource(ctx, id)
		if err != nil {
			result.TotalFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("load data source %s: %v", id, err))
			continue
		}

		if err := sources.UpdateDataSourceStatus(ctx, id, models.StatusInProgress); err != nil {
			w.logger.Warn().Err(err).Str("source_id", id).Msg("Failed to mark source in progress")
		}

		text, err := w.extractor.Extract(ctx, source)
		processed := models.ProcessedSource{
			DataSourceID: id,
			Type:         source.Type,
			FileName:     source.FileName,
			ProcessedAt:  time.Now().UTC(),
		}
		if err != nil {
			extractErr := &models.ExtractionError{DataSourceID: id, Err: err}
			w.logger.Warn().Err(extractErr).Str("source_id", id).Msg("Content extraction failed")
			result.TotalFailed++
			result.Errors = append(result.Errors, extractErr.Error())
			processed.Status = models.StatusFailed
			processed.Error = extractErr.Error()
			result.ProcessedSources = append(result.ProcessedSources, processed)
			if err := sources.UpdateDataSourceStatus(ctx, id, models.StatusFailed); err != nil {
				w.logger.Warn().Err(err).Str("source_id", id).Msg("Failed to mark source failed")
			}
			continue
		}

		sections = append(sections, sourceSection(source, text))
		snippet := text
		if len(snippet) > contentSnippetLimit {
			snippet = snippet[:contentSnippetLimit]
		}
		if err := sources.UpdateDataSourceContent(ctx, id, snippet); err != nil {
			w.logger.Warn().Err(err).Str("source_id", id).Msg("Failed to store extracted content")
		}

		processed.Status = models.StatusCompleted
		result.TotalProcessed++
		result.ProcessedSources = append(result.ProcessedSources, processed)
		succeeded = append(succeeded, id)
	}

	if len(sections) == 0 {
		return result
	}

	analysis, err := w.analyzer.AnalyzeDocuments(ctx, startup.Name, strings.Join(sections, "\n\n"))
	if err != nil {
		// The analyzer degrades internally; an error here is infrastructure,
		// and the whole batch fails with it.
		w.logger.Error().Err(err).Str("startup_id", startup.ID).Msg("Document analysis failed")
		w.failSources(ctx, result, succeeded, fmt.Sprintf("document analysis failed: %v", err))
		return result
	}

	if err := w.storage.FindingStorage().StoreDocumentAnalysis(ctx, startup.ID, analysis); err != nil {
		w.logger.Error().Err(err).Str("startup_id", startup.ID).Msg("Failed to persist analysis findings")
		w.failSources(ctx, result, succeeded, fmt.Sprintf("persist findings failed: %v", err))
		return result
	}

	finalSummary := strings.Join(analysis.Insights, "\n")
	if err := w.storage.StartupStorage().UpdateSummary(ctx, startup.ID, analysis.Summary, finalSummary); err != nil {
		w.logger.Warn().Err(err).Str("startup_id", startup.ID).Msg("Failed to update startup summary")
	}

	for _, id := range succeeded {
		if err := w.storage.DataSourceStorage().UpdateDataSourceStatus(ctx, id, models.StatusCompleted); err != nil {
			w.logger.Warn().Err(err).Str("source_id", id).Msg("Failed to mark source completed")
		}
	}
	return result
}

// failSources flips every extracted-but-unpersisted source to failed and
// rewrites the tallies accordingly.
func (w *IngestionWorker) failSources(ctx context.Context, result *models.IngestionResult, ids []string, reason string) {
	result.Errors = append(result.Errors, reason)
	result.TotalFailed += len(ids)
	result.TotalProcessed -= len(ids)

	failed := make(map[string]bool, len(ids))
	for _, id := range ids {
		failed[id] = true
		if err := w.storage.DataSourceStorage().UpdateDataSourceStatus(ctx, id, models.StatusFailed); err != nil {
			w.logger.Warn().Err(err).Str("source_id", id).Msg("Failed to mark source failed")
		}
	}
	for i := range result.ProcessedSources {
		if failed[result.ProcessedSources[i].DataSourceID] {
			result.ProcessedSources[i].Status = models.StatusFailed
			result.ProcessedSources[i].Error = reason
		}
	}
}

func (w *IngestionWorker) markStarted(ctx context.Context, job *models.Job) {
	now := time.Now().UTC()
	job.Status = models.StatusInProgress
	job.StartedAt = &now
	if err := w.storage.JobStorage().UpdateJob(ctx, job); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job in progress")
	}
}

// sourceSection prefixes one source's text with its type and filename so
// the analyzer can attribute findings across documents.
func sourceSection(source *models.DataSource, text string) string {
	header := strings.ToUpper(string(source.Type))
	if source.FileName != "" {
		header = fmt.Sprintf("%s (%s)", header, source.FileName)
	}
	return fmt.Sprintf("--- %s ---\n%s\n", header, text)
}
