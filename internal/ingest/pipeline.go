package ingest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rag-service/internal/apperr"
	"rag-service/internal/document"
	"rag-service/internal/models"
)

// Stage progress checkpoints, committed to the document row as each stage
// finishes.
var stageProgress = map[string]int{
	models.StepUpload:     5,
	models.StepOCR:        35,
	models.StepChunk:      70,
	models.StepEmbedStore: 100,
}

// staleProcessingWindow is how long a processing status blocks a new run.
// A row stuck in processing longer than this is treated as abandoned.
const staleProcessingWindow = 10 * time.Minute

// DocumentStore is the document persistence the pipeline drives.
type DocumentStore interface {
	Get(ctx context.Context, id int64) (*models.Document, error)
	MarkStarted(ctx context.Context, id int64, step string, progress int) error
	SetProgress(ctx context.Context, id int64, step string, progress int) error
	MarkCompleted(ctx context.Context, id int64, textContent string, durationMs int64) error
	MarkError(ctx context.Context, id int64, message string, durationMs int64) error
}

// ChunkStore is the chunk persistence the pipeline drives.
type ChunkStore interface {
	DeleteByDocument(ctx context.Context, documentID int64) error
	InsertBatch(ctx context.Context, chunks []models.Chunk) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the vector persistence the pipeline drives.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error
	DeleteByLogicalIDs(ctx context.Context, ids []string) error
	DeleteByDocumentID(ctx context.Context, documentID int64) error
}

// StepReport is one pipeline stage in the ingestion response.
type StepReport struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
}

// Result summarizes a completed ingestion run.
type Result struct {
	DocumentID      int64        `json:"document_id"`
	Status          string       `json:"status"`
	ChunkCount      int          `json:"chunk_count"`
	Steps           []StepReport `json:"steps"`
	TotalDurationMs int64        `json:"total_duration_ms"`
}

// Pipeline runs extract, chunk, embed and vector upsert for one document,
// committing progress after each stage and rolling back on failure.
type Pipeline struct {
	docs      DocumentStore
	chunks    ChunkStore
	embedder  Embedder
	vectors   VectorStore
	extractor *document.Extractor
	log       zerolog.Logger

	mu      sync.Mutex
	running map[int64]bool
}

// NewPipeline wires the pipeline dependencies.
func NewPipeline(docs DocumentStore, chunks ChunkStore, embedder Embedder, vectors VectorStore, extractor *document.Extractor, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		docs:      docs,
		chunks:    chunks,
		embedder:  embedder,
		vectors:   vectors,
		extractor: extractor,
		log:       log.With().Str("component", "ingest").Logger(),
		running:   make(map[int64]bool),
	}
}

// acquire claims the in-process slot for the document.
func (p *Pipeline) acquire(documentID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[documentID] {
		return false
	}
	p.running[documentID] = true
	return true
}

func (p *Pipeline) release(documentID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, documentID)
}

// Run ingests one document end to end. Negative chunkSize or chunkOverlap
// select the defaults; zero overlap is honored. A run already in flight
// for the document is rejected with a conflict.
func (p *Pipeline) Run(ctx context.Context, documentID int64, chunkSize, chunkOverlap int) (*Result, error) {
	if chunkSize <= 0 {
		chunkSize = document.DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = document.DefaultChunkOverlap
	}
	chunker, err := document.NewChunker(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}

	if !p.acquire(documentID) {
		return nil, apperr.Conflict(fmt.Sprintf("Document %d is already being processed", documentID))
	}
	defer p.release(documentID)

	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusProcessing && doc.ProcessingStarted != nil &&
		time.Since(*doc.ProcessingStarted) < staleProcessingWindow {
		return nil, apperr.Conflict(fmt.Sprintf("Document %d is already being processed", documentID))
	}

	start := time.Now()
	var recorded []string
	result, runErr := p.run(ctx, doc, chunker, start, &recorded)
	if runErr != nil {
		p.fail(doc, runErr, start, recorded)
		return nil, runErr
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, doc *models.Document, chunker *document.Chunker, start time.Time, recorded *[]string) (*Result, error) {
	var steps []StepReport
	step := func(name string, began time.Time, detail string) {
		steps = append(steps, StepReport{
			Name:       name,
			DurationMs: time.Since(began).Milliseconds(),
			Detail:     detail,
		})
	}

	// upload: the file is already on disk, so this stage only opens the
	// run and commits progress. It does not appear in the step report.
	if err := p.docs.MarkStarted(ctx, doc.ID, models.StepUpload, stageProgress[models.StepUpload]); err != nil {
		return nil, err
	}

	// ocr: text extraction.
	began := time.Now()
	pages, err := p.extractor.Extract(doc.FilePath, doc.ContentType)
	if err != nil {
		return nil, err
	}
	text := document.Render(pages)
	if err := p.docs.SetProgress(ctx, doc.ID, models.StepOCR, stageProgress[models.StepOCR]); err != nil {
		return nil, err
	}
	step(models.StepOCR, began, fmt.Sprintf("%d pages", len(pages)))

	// chunk: split and persist, replacing any previous run's chunks.
	began = time.Now()
	pieces := chunker.ChunkText(text)
	if len(pieces) == 0 {
		return nil, apperr.BadRequest(fmt.Sprintf("Document %d contains no extractable text", doc.ID))
	}
	if err := p.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, err
	}
	records := buildChunks(doc, pieces, chunker.Cleaned(text))
	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return nil, err
	}
	if err := p.docs.SetProgress(ctx, doc.ID, models.StepChunk, stageProgress[models.StepChunk]); err != nil {
		return nil, err
	}
	step(models.StepChunk, began, fmt.Sprintf("%d chunks", len(records)))

	// embed_store: embed and upsert, replacing the document's old points.
	began = time.Now()
	texts := make([]string, len(records))
	for i, c := range records {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := p.vectors.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return nil, err
	}
	ids, payloads := buildPayloads(doc, records)
	*recorded = ids
	if err := p.vectors.Upsert(ctx, ids, vectors, payloads); err != nil {
		return nil, err
	}
	if err := p.docs.SetProgress(ctx, doc.ID, models.StepEmbedStore, stageProgress[models.StepEmbedStore]); err != nil {
		return nil, err
	}
	step(models.StepEmbedStore, began, fmt.Sprintf("%d vectors", len(ids)))

	total := time.Since(start).Milliseconds()
	if err := p.docs.MarkCompleted(ctx, doc.ID, chunker.Cleaned(text), total); err != nil {
		return nil, err
	}

	return &Result{
		DocumentID:      doc.ID,
		Status:          models.StatusCompleted,
		ChunkCount:      len(records),
		Steps:           steps,
		TotalDurationMs: total,
	}, nil
}

// fail rolls the run back and records the terminal error state. Rollback
// uses a fresh context so cancellation of the request does not leave
// partial chunks or vectors behind. Both deletions are attempted even if
// one fails; the original error is what callers see. Only vectors recorded
// during this run are removed so an earlier successful run's points stay
// intact when the failure happened before the upsert.
func (p *Pipeline) fail(doc *models.Document, runErr error, start time.Time, recorded []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := p.log.With().Int64("document_id", doc.ID).Logger()
	log.Error().Err(runErr).Msg("ingestion failed, rolling back")

	if err := p.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		log.Error().Err(err).Msg("rollback: failed to delete chunks")
	}
	if err := p.vectors.DeleteByLogicalIDs(ctx, recorded); err != nil {
		log.Error().Err(err).Msg("rollback: failed to delete vectors")
	}

	total := time.Since(start).Milliseconds()
	if err := p.docs.MarkError(ctx, doc.ID, runErr.Error(), total); err != nil {
		log.Error().Err(err).Msg("rollback: failed to record error state")
	}
}

// pageMarker matches the page headers the extractor renders into the text.
var pageMarker = regexp.MustCompile(`\[Page (\d+)\]`)

// buildChunks converts split pieces into chunk records, attributing each
// chunk to the page whose marker last precedes its start offset.
func buildChunks(doc *models.Document, pieces []document.Chunk, cleaned string) []models.Chunk {
	markers := pageMarker.FindAllStringSubmatchIndex(cleaned, -1)
	positions := make([]int, len(markers))
	numbers := make([]int, len(markers))
	for i, m := range markers {
		positions[i] = m[0]
		numbers[i], _ = strconv.Atoi(cleaned[m[2]:m[3]])
	}

	records := make([]models.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		start := piece.StartOffset
		end := piece.EndOffset
		c := models.Chunk{
			DocumentID:      doc.ID,
			DocumentOwnerID: doc.OwnerID,
			Content:         piece.Content,
			ChunkIndex:      piece.Index,
			CharCount:       len(piece.Content),
			StartOffset:     &start,
			EndOffset:       &end,
		}
		if i := sort.SearchInts(positions, piece.StartOffset+1) - 1; i >= 0 {
			page := numbers[i]
			c.PageNumber = &page
		}
		records = append(records, c)
	}
	return records
}

// buildPayloads produces the logical ids and vector payloads for a run.
func buildPayloads(doc *models.Document, records []models.Chunk) ([]string, []map[string]any) {
	ids := make([]string, len(records))
	payloads := make([]map[string]any, len(records))
	for i, c := range records {
		ids[i] = models.VectorLogicalID(doc.ID, c.ChunkIndex)
		payload := map[string]any{
			"logical_id":                 ids[i],
			"document_id":                doc.ID,
			"document_owner_id":          doc.OwnerID,
			"document_name":              doc.Name,
			"document_original_filename": doc.OriginalFilename,
			"content_type":               doc.ContentType,
			"document_created_at":        doc.CreatedAt.UTC().Format(time.RFC3339),
			"document_created_at_ts":     doc.CreatedAt.Unix(),
			"chunk_index":                c.ChunkIndex,
			"text":                       c.Content,
		}
		if c.PageNumber != nil {
			payload["page"] = *c.PageNumber
		}
		payloads[i] = payload
	}
	return ids, payloads
}
