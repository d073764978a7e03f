package documents

import (
	"fmt"

	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

// Writer serializes a header and an ordered list of records into one wire
// format for one document type. Write is deterministic: the same inputs
// always produce byte-identical output, and records are written in the order
// supplied, never reordered or deduplicated.
type Writer interface {
	HandlesType(documentType enums.DocumentType) bool
	HandlesFormat(format enums.DocumentFormat) bool
	Write(header Header, records []MarketActivityRecord) ([]byte, error)
}

// Selector picks the single writer claiming a (type, format) pair. Zero or
// multiple matches is a configuration fault, never a silent fallback.
type Selector struct {
	writers []Writer
}

// NewSelector builds a selector over the registered writer set.
func NewSelector(writers ...Writer) *Selector {
	return &Selector{writers: writers}
}

// Select returns the writer for the pair or a configuration error.
func (s *Selector) Select(documentType enums.DocumentType, format enums.DocumentFormat) (Writer, error) {
	var match Writer
	for _, w := range s.writers {
		if !w.HandlesType(documentType) || !w.HandlesFormat(format) {
			continue
		}
		if match != nil {
			return nil, pkgerrors.New(pkgerrors.CodeConfiguration,
				fmt.Sprintf("multiple writers registered for %s/%s", documentType, format))
		}
		match = w
	}
	if match == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration,
			fmt.Sprintf("no writer registered for %s/%s", documentType, format))
	}
	return match, nil
}
