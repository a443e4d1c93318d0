// Package classify validates upload batches and infers document types from
// filenames. Classification is a fixed ordered rule list; no inference beyond
// substring matching is involved.
package classify

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// MaxBatchSize is the contract-level cap on files per submission.
const MaxBatchSize = 10

// Reason codes for batch rejection. These surface verbatim to callers.
const (
	ReasonEmptyBatch   = "EmptyBatch"
	ReasonTooManyFiles = "TooManyFiles"
	ReasonFileTooLarge = "FileTooLarge"
)

// ValidationError rejects a batch before any collaborator is invoked.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ":" + e.Detail
}

// Limits bounds an upload batch. SizeCaps is keyed by document type; types
// without an entry fall back to DefaultSizeCap.
type Limits struct {
	MaxFiles       int
	DefaultSizeCap int64
	SizeCaps       map[model.DocumentType]int64
}

// DefaultLimits returns the stock batch limits: 10 files, 30MB decks, 10MB
// for everything else.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:       MaxBatchSize,
		DefaultSizeCap: 10 << 20,
		SizeCaps: map[model.DocumentType]int64{
			model.DocTypePitchDeck: 30 << 20,
		},
	}
}

// acceptedMediaTypes is advisory: anything else logs a warning but does not
// reject the upload, since declared media types are routinely wrong.
var acceptedMediaTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"text/plain": true,
	"text/csv":   true,
}

// classRule maps filename substrings to a document type. First match wins.
type classRule struct {
	needles []string
	docType model.DocumentType
}

var classRules = []classRule{
	{[]string{"pitch", "deck"}, model.DocTypePitchDeck},
	{[]string{"financial", "model", "finance"}, model.DocTypeFinancialModel},
	{[]string{"founder", "team", "profile"}, model.DocTypeFounderProfile},
	{[]string{"market", "research", "analysis"}, model.DocTypeMarketResearch},
	{[]string{"traction", "metrics", "growth"}, model.DocTypeTractionData},
}

// Classify infers a document type from the filename, then from the declared
// field name. Unmatched documents are typed as generic documents.
func Classify(doc model.UploadedDocument) model.DocumentType {
	if t, ok := matchRules(doc.Name); ok {
		return t
	}
	if t, ok := matchRules(doc.FieldName); ok {
		return t
	}
	return model.DocTypeGeneric
}

func matchRules(name string) (model.DocumentType, bool) {
	lower := strings.ToLower(name)
	if lower == "" {
		return "", false
	}
	for _, rule := range classRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.docType, true
			}
		}
	}
	return "", false
}

// ValidateBatch checks the batch against limits and returns classified
// documents. Size caps are type-specific, so classification happens first.
func ValidateBatch(batch []model.UploadedDocument, limits Limits) ([]model.ClassifiedDocument, error) {
	if len(batch) == 0 {
		return nil, &ValidationError{Code: ReasonEmptyBatch}
	}

	maxFiles := limits.MaxFiles
	if maxFiles <= 0 || maxFiles > MaxBatchSize {
		maxFiles = MaxBatchSize
	}
	if len(batch) > maxFiles {
		return nil, &ValidationError{
			Code:   ReasonTooManyFiles,
			Detail: fmt.Sprintf("%d files exceeds limit of %d", len(batch), maxFiles),
		}
	}

	classified := make([]model.ClassifiedDocument, 0, len(batch))
	for _, doc := range batch {
		docType := Classify(doc)

		sizeCap := limits.DefaultSizeCap
		if c, ok := limits.SizeCaps[docType]; ok {
			sizeCap = c
		}
		if sizeCap > 0 && doc.SizeBytes > sizeCap {
			return nil, &ValidationError{Code: ReasonFileTooLarge, Detail: doc.Name}
		}

		if doc.MediaType != "" && !acceptedMediaTypes[doc.MediaType] {
			zap.L().Warn("classify: unrecognized media type",
				zap.String("file", doc.Name),
				zap.String("media_type", doc.MediaType),
			)
		}

		classified = append(classified, model.ClassifiedDocument{Upload: doc, Type: docType})
	}
	return classified, nil
}

// sectorIndustries maps sector codes to display names for market lookups.
var sectorIndustries = map[string]string{
	"saas":      "Software as a Service",
	"fintech":   "Financial Technology",
	"healthtech": "Healthcare & Medical Technology",
	"edtech":    "Education Technology",
	"ai":        "Artificial Intelligence & Machine Learning",
	"ecommerce": "E-Commerce & Direct-to-Consumer",
	"mobility":  "Mobility & Transportation",
	"climate":   "Climate Technology & Sustainability",
	"consumer":  "Consumer Applications & Services",
	"other":     "Other Technology",
}

// IndustryForSector resolves a sector code to its display name. Unknown codes
// are title-cased as-is.
func IndustryForSector(sector string) string {
	if name, ok := sectorIndustries[strings.ToLower(sector)]; ok {
		return name
	}
	if sector == "" {
		return ""
	}
	return strings.ToUpper(sector[:1]) + sector[1:]
}
