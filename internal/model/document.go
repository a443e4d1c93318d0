package model

import "time"

// DocumentType classifies an uploaded document by its role in the deal room.
type DocumentType string

const (
	DocTypePitchDeck      DocumentType = "pitchDeck"
	DocTypeFinancialModel DocumentType = "financialModel"
	DocTypeFounderProfile DocumentType = "founderProfiles"
	DocTypeMarketResearch DocumentType = "marketResearch"
	DocTypeTractionData   DocumentType = "tractionData"
	DocTypeGeneric        DocumentType = "document"
)

// UploadedDocument is a raw file as received from the caller. It is never
// mutated by the pipeline.
type UploadedDocument struct {
	Name      string `json:"name"`
	FieldName string `json:"field_name,omitempty"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
	Content   []byte `json:"-"`
}

// ClassifiedDocument pairs an upload with its inferred type.
type ClassifiedDocument struct {
	Upload UploadedDocument `json:"upload"`
	Type   DocumentType     `json:"type"`
}

// ProcessedDocument is the immutable output of a successful extraction.
type ProcessedDocument struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            DocumentType   `json:"type"`
	SizeBytes       int64          `json:"size_bytes"`
	ExtractedText   string         `json:"extracted_text"`
	ExtractedFields map[string]any `json:"extracted_fields,omitempty"`
	PageCount       int            `json:"page_count"`
	Confidence      float64        `json:"confidence"`
	ProcessedAt     time.Time      `json:"processed_at"`
}

// ReasoningDocument is the reduced shape handed to the reasoning engine.
type ReasoningDocument struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            DocumentType   `json:"type"`
	ExtractedText   string         `json:"extracted_text"`
	ExtractedFields map[string]any `json:"extracted_fields,omitempty"`
	Confidence      float64        `json:"confidence"`
	SizeBytes       int64          `json:"size_bytes"`
}

// ToReasoningDocument reduces a processed document for the reasoning stage.
func (d ProcessedDocument) ToReasoningDocument() ReasoningDocument {
	return ReasoningDocument{
		ID:              d.ID,
		Name:            d.Name,
		Type:            d.Type,
		ExtractedText:   d.ExtractedText,
		ExtractedFields: d.ExtractedFields,
		Confidence:      d.Confidence,
		SizeBytes:       d.SizeBytes,
	}
}
