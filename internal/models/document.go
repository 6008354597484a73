package models

import "time"

// Document status values.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusDeleted    = "deleted"
)

// Processing step values, in pipeline order.
const (
	StepUpload     = "upload"
	StepOCR        = "ocr"
	StepChunk      = "chunk"
	StepEmbedStore = "embed_store"
	StepCompleted  = "completed"
	StepError      = "error"
)

// Document is an uploaded file tracked through the ingestion pipeline.
// Only the pipeline mutates the processing fields until a terminal state.
type Document struct {
	ID               int64
	OwnerID          int64
	Name             string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	ContentType      string
	TextContent      *string

	Status             string
	ProcessingStep     *string
	ProcessingProgress int
	ProcessingStarted  *time.Time
	ProcessingFinished *time.Time
	ProcessingDuration *int64
	ErrorCount         int
	LastError          *string

	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one contiguous span of a document's cleaned text. chunk_index
// is dense from 0 within a successful ingestion run.
type Chunk struct {
	ID              int64
	DocumentID      int64
	DocumentOwnerID int64
	Content         string
	ChunkIndex      int
	PageNumber      *int
	CharCount       int
	StartOffset     *int
	EndOffset       *int
	CreatedAt       time.Time
}

// LogicalID is the stable payload key addressing this chunk's vector point.
func (c *Chunk) LogicalID() string {
	return VectorLogicalID(c.DocumentID, c.ChunkIndex)
}
