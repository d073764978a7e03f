package cim

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

func TestJSONWriteIsDeterministic(t *testing.T) {
	writer := NewValidatedMeasureJSONWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)
	records := []documents.MarketActivityRecord{measureRecord("tx-1"), measureRecord("tx-2")}

	first, err := writer.Write(header, records)
	if err != nil {
		t.Fatalf("first Write returned error: %v", err)
	}
	second, err := writer.Write(header, records)
	if err != nil {
		t.Fatalf("second Write returned error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("two writes of the same inputs produced different bytes")
	}
}

func TestJSONRootElementAndHeader(t *testing.T) {
	writer := NewValidatedMeasureJSONWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)

	out, err := writer.Write(header, []documents.MarketActivityRecord{measureRecord("tx-1")})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var parsed map[string]map[string]json.RawMessage
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected a single root element, got %d", len(parsed))
	}
	doc, ok := parsed["NotifyValidatedMeasureData_MarketDocument"]
	if !ok {
		t.Fatalf("root element missing, got keys %v", keysOf(parsed))
	}
	if string(doc["mRID"]) != `"`+header.MessageID.String()+`"` {
		t.Errorf("document mRID = %s, want %q", doc["mRID"], header.MessageID)
	}
	if string(doc["createdDateTime"]) != `"2026-03-01T12:00:00Z"` {
		t.Errorf("createdDateTime = %s", doc["createdDateTime"])
	}
	var docType codeValue
	if err := json.Unmarshal(doc["type"], &docType); err != nil || docType.Value != "E66" {
		t.Errorf("document type = %s, want coded E66", doc["type"])
	}
}

func TestJSONSeriesFollowInputOrder(t *testing.T) {
	writer := NewValidatedMeasureJSONWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)
	records := []documents.MarketActivityRecord{measureRecord("tx-z"), measureRecord("tx-a")}

	out, err := writer.Write(header, records)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var parsed map[string]struct {
		Series []struct {
			MRID string `json:"mRID"`
		} `json:"Series"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	series := parsed["NotifyValidatedMeasureData_MarketDocument"].Series
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if series[0].MRID != "tx-z" || series[1].MRID != "tx-a" {
		t.Fatalf("series were reordered: %q, %q", series[0].MRID, series[1].MRID)
	}
}

func TestJSONRejectDocument(t *testing.T) {
	writer := NewRejectJSONWriter()
	header := testHeader(enums.TypeRejectRequestMeasureData)

	out, err := writer.Write(header, []documents.MarketActivityRecord{
		documents.RejectRecord{
			ID:                           "tx-rej",
			OriginalTransactionReference: "orig-001",
			ReasonCode:                   "E0H",
			ReasonText:                   "metering point unknown",
		},
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if !bytes.Contains(out, []byte(`"originalTransactionIDReference_Series.mRID": "orig-001"`)) {
		t.Errorf("original transaction reference missing:\n%s", out)
	}
	if !bytes.Contains(out, []byte(`"text": "metering point unknown"`)) {
		t.Errorf("reason text missing:\n%s", out)
	}
}

func TestJSONWriteRejectsForeignRecordKind(t *testing.T) {
	writer := NewRejectJSONWriter()
	header := testHeader(enums.TypeRejectRequestMeasureData)

	_, err := writer.Write(header, []documents.MarketActivityRecord{measureRecord("tx-1")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func keysOf(m map[string]map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
