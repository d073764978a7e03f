// Package catalog assembles the full set of document writers the hub can
// materialize bundles with.
package catalog

import (
	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/internal/documents/cim"
	"github.com/nordvolt/edi-hub/internal/documents/ebix"
)

// Writers returns one writer per supported (document type, format) pair.
func Writers() []documents.Writer {
	return []documents.Writer{
		cim.NewValidatedMeasureXMLWriter(),
		cim.NewAggregatedMeasureXMLWriter(),
		cim.NewRejectXMLWriter(),
		cim.NewValidatedMeasureJSONWriter(),
		cim.NewAggregatedMeasureJSONWriter(),
		cim.NewRejectJSONWriter(),
		ebix.NewValidatedMeasureWriter(),
		ebix.NewAggregatedMeasureWriter(),
		ebix.NewRejectWriter(),
	}
}

// NewSelector builds a selector over the full writer catalog.
func NewSelector() *documents.Selector {
	return documents.NewSelector(Writers()...)
}
