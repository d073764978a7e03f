package documents

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

// Quality codes the market schemas accept on an observation.
var allowedQualities = map[string]struct{}{
	"A01": {}, // adjusted
	"A02": {}, // not available
	"A03": {}, // estimated
	"A04": {}, // as provided
	"A05": {}, // incomplete
}

// Details parameterizes a writer for one (document type, format) pair: root
// element name, schema namespace, wire type code and the format's own field
// constraints. One parameterized writer per format replaces a writer class
// per combination.
type Details struct {
	Type        enums.DocumentType
	Format      enums.DocumentFormat
	RootElement string
	Namespace   string
	TypeCode    string
	ContentType string

	// MaxTransactionRefLen bounds the original-transaction-reference
	// identifier. The limit differs between formats for the same logical
	// field; ebIX is stricter than CIM.
	MaxTransactionRefLen int
}

// ValidateHeader checks the fields every schema requires in the document header.
func (d Details) ValidateHeader(header Header) error {
	if header.MessageID == uuid.Nil {
		return schemaError(d, "header message id is required")
	}
	if header.DocumentType != d.Type {
		return schemaError(d, fmt.Sprintf("header document type %s does not match writer type %s", header.DocumentType, d.Type))
	}
	if header.SenderNumber == "" || !header.SenderRole.IsValid() {
		return schemaError(d, "header sender identification is incomplete")
	}
	if header.ReceiverNumber == "" || !header.ReceiverRole.IsValid() {
		return schemaError(d, "header receiver identification is incomplete")
	}
	if !header.BusinessReason.IsValid() {
		return schemaError(d, fmt.Sprintf("unknown business reason %q", header.BusinessReason))
	}
	if header.CreatedAt.IsZero() {
		return schemaError(d, "header creation timestamp is required")
	}
	return nil
}

// ValidateRecord checks one record against the format's schema constraints.
func (d Details) ValidateRecord(record MarketActivityRecord) error {
	if record.TransactionID() == "" {
		return schemaError(d, "record transaction id is required")
	}
	if record.RecordType() != d.Type {
		return schemaError(d, fmt.Sprintf("record type %s does not match writer type %s", record.RecordType(), d.Type))
	}
	switch r := record.(type) {
	case MeasureDataRecord:
		if r.MeteringPointID == "" {
			return schemaError(d, "metering point id is required")
		}
		if r.Resolution == "" {
			return schemaError(d, "series resolution is required")
		}
		if !r.PeriodStart.Before(r.PeriodEnd) {
			return schemaError(d, "series period start must precede period end")
		}
		return d.validatePoints(r.Points)
	case AggregatedDataRecord:
		if r.GridArea == "" {
			return schemaError(d, "grid area is required")
		}
		if r.Resolution == "" {
			return schemaError(d, "series resolution is required")
		}
		if !r.PeriodStart.Before(r.PeriodEnd) {
			return schemaError(d, "series period start must precede period end")
		}
		return d.validatePoints(r.Points)
	case RejectRecord:
		if r.OriginalTransactionReference == "" {
			return schemaError(d, "original transaction reference is required")
		}
		if d.MaxTransactionRefLen > 0 && len(r.OriginalTransactionReference) > d.MaxTransactionRefLen {
			return schemaError(d, fmt.Sprintf(
				"original transaction reference exceeds %d characters", d.MaxTransactionRefLen))
		}
		if r.ReasonCode == "" {
			return schemaError(d, "reject reason code is required")
		}
		return nil
	default:
		return schemaError(d, fmt.Sprintf("unsupported record kind %T", record))
	}
}

func (d Details) validatePoints(points []MeasurePoint) error {
	if len(points) == 0 {
		return schemaError(d, "series requires at least one observation")
	}
	for i, point := range points {
		if point.Position != i+1 {
			return schemaError(d, fmt.Sprintf(
				"observation positions must be contiguous from 1, got %d at index %d", point.Position, i))
		}
		if point.Quality != "" {
			if _, ok := allowedQualities[point.Quality]; !ok {
				return schemaError(d, fmt.Sprintf("unknown quality code %q", point.Quality))
			}
		}
	}
	return nil
}

func schemaError(d Details, msg string) error {
	return pkgerrors.New(pkgerrors.CodeSchema,
		fmt.Sprintf("%s/%s: %s", d.Type, d.Format, msg))
}
