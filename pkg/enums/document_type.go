package enums

import "fmt"

// DocumentType names a business document exchanged on the market. The code
// is the wire-level document type code written into generated documents.
type DocumentType string

const (
	TypeNotifyValidatedMeasureData  DocumentType = "NotifyValidatedMeasureData"
	TypeNotifyAggregatedMeasureData DocumentType = "NotifyAggregatedMeasureData"
	TypeRejectRequestMeasureData    DocumentType = "RejectRequestMeasureData"
)

var documentTypeCodes = map[DocumentType]string{
	TypeNotifyValidatedMeasureData:  "E66",
	TypeNotifyAggregatedMeasureData: "E31",
	TypeRejectRequestMeasureData:    "ERR",
}

// Category returns the mailbox category a document type is delivered under.
func (t DocumentType) Category() MessageCategory {
	switch t {
	case TypeNotifyAggregatedMeasureData:
		return CategoryAggregations
	default:
		return CategoryMeasureData
	}
}

// Code returns the wire-level document type code.
func (t DocumentType) Code() string {
	return documentTypeCodes[t]
}

// String implements fmt.Stringer.
func (t DocumentType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known document type.
func (t DocumentType) IsValid() bool {
	_, ok := documentTypeCodes[t]
	return ok
}

// ParseDocumentType converts raw input into a DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	if t := DocumentType(value); t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
