package documents

import (
	"testing"

	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

type fakeWriter struct {
	documentType enums.DocumentType
	format       enums.DocumentFormat
}

func (w fakeWriter) HandlesType(t enums.DocumentType) bool     { return t == w.documentType }
func (w fakeWriter) HandlesFormat(f enums.DocumentFormat) bool { return f == w.format }
func (w fakeWriter) Write(Header, []MarketActivityRecord) ([]byte, error) {
	return nil, nil
}

func TestSelectorPicksSingleMatch(t *testing.T) {
	want := fakeWriter{enums.TypeNotifyValidatedMeasureData, enums.FormatCIMXML}
	selector := NewSelector(
		want,
		fakeWriter{enums.TypeNotifyValidatedMeasureData, enums.FormatEbix},
		fakeWriter{enums.TypeRejectRequestMeasureData, enums.FormatCIMXML},
	)

	got, err := selector.Select(enums.TypeNotifyValidatedMeasureData, enums.FormatCIMXML)
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if got != want {
		t.Fatalf("Select returned %+v, want %+v", got, want)
	}
}

func TestSelectorNoMatchIsConfigurationError(t *testing.T) {
	selector := NewSelector(fakeWriter{enums.TypeNotifyValidatedMeasureData, enums.FormatCIMXML})

	_, err := selector.Select(enums.TypeNotifyAggregatedMeasureData, enums.FormatEbix)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSelectorDuplicateMatchIsConfigurationError(t *testing.T) {
	pair := fakeWriter{enums.TypeNotifyValidatedMeasureData, enums.FormatCIMXML}
	selector := NewSelector(pair, pair)

	_, err := selector.Select(enums.TypeNotifyValidatedMeasureData, enums.FormatCIMXML)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
