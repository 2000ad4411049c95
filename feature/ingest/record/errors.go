package record

import "fmt"

// NormalizationErrorKind classifies why a raw item could not be normalized.
type NormalizationErrorKind string

const (
	// ErrUnknownType means the item's dataset or structure matched no known
	// record variant.
	ErrUnknownType NormalizationErrorKind = "unknown_type"
	// ErrMissingField means a field required by the variant was absent.
	ErrMissingField NormalizationErrorKind = "missing_field"
	// ErrMalformedValue means a required field was present but unparseable.
	ErrMalformedValue NormalizationErrorKind = "malformed_value"
)

// NormalizationError reports a per-item normalization failure. It is local to
// the item: the orchestrator logs it, drops the item and continues the batch.
type NormalizationError struct {
	Kind    NormalizationErrorKind
	Dataset string
	Field   string
	Detail  string
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalize %s: %s", e.Dataset, e.Kind)
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func unknownType(dataset string) error {
	return &NormalizationError{Kind: ErrUnknownType, Dataset: dataset}
}

func missingField(dataset, field string) error {
	return &NormalizationError{Kind: ErrMissingField, Dataset: dataset, Field: field}
}

func malformedValue(dataset, field, detail string) error {
	return &NormalizationError{Kind: ErrMalformedValue, Dataset: dataset, Field: field, Detail: detail}
}
