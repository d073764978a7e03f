package enums

import "fmt"

// DocumentFormat identifies one of the supported wire formats a bundle can
// be materialized into. Each format has its own schema namespace and
// content type.
type DocumentFormat string

const (
	FormatCIMXML  DocumentFormat = "cim-xml"
	FormatCIMJSON DocumentFormat = "cim-json"
	FormatEbix    DocumentFormat = "ebix"
)

var documentFormatContentTypes = map[DocumentFormat]string{
	FormatCIMXML:  "application/xml; charset=utf-8",
	FormatCIMJSON: "application/json; charset=utf-8",
	FormatEbix:    "application/xml; charset=utf-8",
}

// ContentType returns the HTTP content type served for the format.
func (f DocumentFormat) ContentType() string {
	return documentFormatContentTypes[f]
}

// String implements fmt.Stringer.
func (f DocumentFormat) String() string {
	return string(f)
}

// IsValid reports whether the value is a known document format.
func (f DocumentFormat) IsValid() bool {
	_, ok := documentFormatContentTypes[f]
	return ok
}

// ParseDocumentFormat converts raw input into a DocumentFormat.
func ParseDocumentFormat(value string) (DocumentFormat, error) {
	if f := DocumentFormat(value); f.IsValid() {
		return f, nil
	}
	return "", fmt.Errorf("invalid document format %q", value)
}
