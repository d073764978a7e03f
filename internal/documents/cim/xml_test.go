package cim

import (
	"bytes"
	"encoding/xml"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

func testHeader(documentType enums.DocumentType) documents.Header {
	return documents.Header{
		MessageID:      uuid.MustParse("0d4f3bd0-9f3a-4c61-9a75-2f47a1c3a111"),
		DocumentType:   documentType,
		SenderNumber:   "5790000000005",
		SenderRole:     enums.RoleMeteredDataResponsible,
		ReceiverNumber: "5790001330552",
		ReceiverRole:   enums.RoleEnergySupplier,
		BusinessReason: enums.ReasonPeriodicMetering,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func measureRecord(id string) documents.MeasureDataRecord {
	return documents.MeasureDataRecord{
		ID:              id,
		MeteringPointID: "571313180000000005",
		Resolution:      "PT1H",
		Unit:            "KWH",
		PeriodStart:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:       time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		Points: []documents.MeasurePoint{
			{Position: 1, Quantity: decimal.RequireFromString("10.5"), Quality: "A04"},
			{Position: 2, Quantity: decimal.RequireFromString("11.25"), Quality: "A03"},
		},
	}
}

func TestXMLWriteIsDeterministic(t *testing.T) {
	writer := NewValidatedMeasureXMLWriter()
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
	if !bytes.HasPrefix(first, []byte(xml.Header)) {
		t.Error("output does not start with the xml declaration")
	}
	if !bytes.Contains(first, []byte(`<cim:NotifyValidatedMeasureData_MarketDocument xmlns:cim="urn:ediel.org:measure:notifyvalidatedmeasuredata:0:1">`)) {
		t.Error("root element or namespace missing from output")
	}
	if !bytes.Contains(first, []byte(`<cim:quantity>10.5</cim:quantity>`)) {
		t.Error("observation quantity missing from output")
	}
}

func TestXMLSeriesFollowInputOrder(t *testing.T) {
	writer := NewValidatedMeasureXMLWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)
	records := []documents.MarketActivityRecord{measureRecord("tx-z"), measureRecord("tx-a")}

	out, err := writer.Write(header, records)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	z := bytes.Index(out, []byte("<cim:mRID>tx-z</cim:mRID>"))
	a := bytes.Index(out, []byte("<cim:mRID>tx-a</cim:mRID>"))
	if z < 0 || a < 0 {
		t.Fatalf("series transaction ids missing from output:\n%s", out)
	}
	if z > a {
		t.Fatal("series were reordered: tx-z enqueued first must appear first")
	}
}

func TestXMLWriteRejectsForeignRecordKind(t *testing.T) {
	writer := NewValidatedMeasureXMLWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)

	_, err := writer.Write(header, []documents.MarketActivityRecord{
		documents.RejectRecord{ID: "tx-1", OriginalTransactionReference: "o", ReasonCode: "E0H"},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestXMLAggregatedSeriesCarriesGridArea(t *testing.T) {
	writer := NewAggregatedMeasureXMLWriter()
	header := testHeader(enums.TypeNotifyAggregatedMeasureData)

	out, err := writer.Write(header, []documents.MarketActivityRecord{
		documents.AggregatedDataRecord{
			ID:             "tx-agg",
			GridArea:       "804",
			EnergySupplier: "5790001330552",
			Resolution:     "PT1H",
			Unit:           "KWH",
			PeriodStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:      time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
			Points: []documents.MeasurePoint{
				{Position: 1, Quantity: decimal.NewFromInt(42)},
			},
		},
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if !bytes.Contains(out, []byte(`<cim:meteringGridArea_Domain.mRID codingScheme="NDK">804</cim:meteringGridArea_Domain.mRID>`)) {
		t.Errorf("grid area element missing:\n%s", out)
	}
	if !bytes.Contains(out, []byte(`<cim:energySupplier_MarketParticipant.mRID codingScheme="A10">5790001330552</cim:energySupplier_MarketParticipant.mRID>`)) {
		t.Errorf("energy supplier element missing:\n%s", out)
	}
}

func TestXMLRejectDocument(t *testing.T) {
	writer := NewRejectXMLWriter()
	header := testHeader(enums.TypeRejectRequestMeasureData)
	header.ReasonCode = "A02"

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
	if !bytes.Contains(out, []byte("<cim:originalTransactionIDReference_Series.mRID>orig-001</cim:originalTransactionIDReference_Series.mRID>")) {
		t.Errorf("original transaction reference missing:\n%s", out)
	}
	if !bytes.Contains(out, []byte("<cim:code>E0H</cim:code>")) {
		t.Errorf("reject reason code missing:\n%s", out)
	}
	if !bytes.Contains(out, []byte("<cim:reason.code>A02</cim:reason.code>")) {
		t.Errorf("document level reason code missing:\n%s", out)
	}
}

func TestXMLOutputIsWellFormed(t *testing.T) {
	writer := NewValidatedMeasureXMLWriter()
	header := testHeader(enums.TypeNotifyValidatedMeasureData)

	out, err := writer.Write(header, []documents.MarketActivityRecord{measureRecord("tx-1")})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	decoder := xml.NewDecoder(bytes.NewReader(out))
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("output is not well-formed xml: %v", err)
		}
	}
}
