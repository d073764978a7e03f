// Package cim implements the CIM market document writers (XML and JSON
// renderings of the same logical structure).
package cim

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

// CIM allows longer identifiers than ebIX for the same logical field.
const maxTransactionRefLen = 60

// GS1 actor numbers use coding scheme A10.
const codingSchemeGS1 = "A10"

type xmlSeriesFunc func(d documents.Details, record documents.MarketActivityRecord) (xmlSeries, error)

// XMLWriter renders one document type as a CIM XML market document. The
// series function is the only per-type part; header layout is shared.
type XMLWriter struct {
	details documents.Details
	series  xmlSeriesFunc
}

// NewValidatedMeasureXMLWriter writes NotifyValidatedMeasureData documents.
func NewValidatedMeasureXMLWriter() *XMLWriter {
	return &XMLWriter{
		details: documents.Details{
			Type:                 enums.TypeNotifyValidatedMeasureData,
			Format:               enums.FormatCIMXML,
			RootElement:          "NotifyValidatedMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:notifyvalidatedmeasuredata:0:1",
			TypeCode:             enums.TypeNotifyValidatedMeasureData.Code(),
			ContentType:          enums.FormatCIMXML.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: measureSeries,
	}
}

// NewAggregatedMeasureXMLWriter writes NotifyAggregatedMeasureData documents.
func NewAggregatedMeasureXMLWriter() *XMLWriter {
	return &XMLWriter{
		details: documents.Details{
			Type:                 enums.TypeNotifyAggregatedMeasureData,
			Format:               enums.FormatCIMXML,
			RootElement:          "NotifyAggregatedMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:notifyaggregatedmeasuredata:0:1",
			TypeCode:             enums.TypeNotifyAggregatedMeasureData.Code(),
			ContentType:          enums.FormatCIMXML.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: aggregatedSeries,
	}
}

// NewRejectXMLWriter writes RejectRequestMeasureData documents.
func NewRejectXMLWriter() *XMLWriter {
	return &XMLWriter{
		details: documents.Details{
			Type:                 enums.TypeRejectRequestMeasureData,
			Format:               enums.FormatCIMXML,
			RootElement:          "RejectRequestMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:rejectrequestmeasuredata:0:1",
			TypeCode:             enums.TypeRejectRequestMeasureData.Code(),
			ContentType:          enums.FormatCIMXML.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: rejectSeries,
	}
}

func (w *XMLWriter) HandlesType(documentType enums.DocumentType) bool {
	return documentType == w.details.Type
}

func (w *XMLWriter) HandlesFormat(format enums.DocumentFormat) bool {
	return format == w.details.Format
}

func (w *XMLWriter) Write(header documents.Header, records []documents.MarketActivityRecord) ([]byte, error) {
	if err := w.details.ValidateHeader(header); err != nil {
		return nil, err
	}

	doc := xmlDocument{
		XMLName:         xml.Name{Local: "cim:" + w.details.RootElement},
		Namespace:       w.details.Namespace,
		MRID:            header.MessageID.String(),
		Type:            w.details.TypeCode,
		ProcessType:     string(header.BusinessReason),
		SenderID:        partyID{CodingScheme: codingSchemeGS1, Value: header.SenderNumber},
		SenderRole:      string(header.SenderRole),
		ReceiverID:      partyID{CodingScheme: codingSchemeGS1, Value: header.ReceiverNumber},
		ReceiverRole:    string(header.ReceiverRole),
		CreatedDateTime: documents.FormatTimestamp(header.CreatedAt),
		ReasonCode:      header.ReasonCode,
	}
	for _, record := range records {
		if err := w.details.ValidateRecord(record); err != nil {
			return nil, err
		}
		series, err := w.series(w.details, record)
		if err != nil {
			return nil, err
		}
		doc.Series = append(doc.Series, series)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshaling cim xml document")
	}
	out := append([]byte(xml.Header), body...)
	out = append(out, '\n')

	if err := checkXMLSeriesCount(out, "Series", len(records)); err != nil {
		return nil, err
	}
	return out, nil
}

type xmlDocument struct {
	XMLName         xml.Name
	Namespace       string      `xml:"xmlns:cim,attr"`
	MRID            string      `xml:"cim:mRID"`
	Type            string      `xml:"cim:type"`
	ProcessType     string      `xml:"cim:process.processType"`
	SenderID        partyID     `xml:"cim:sender_MarketParticipant.mRID"`
	SenderRole      string      `xml:"cim:sender_MarketParticipant.marketRole.type"`
	ReceiverID      partyID     `xml:"cim:receiver_MarketParticipant.mRID"`
	ReceiverRole    string      `xml:"cim:receiver_MarketParticipant.marketRole.type"`
	CreatedDateTime string      `xml:"cim:createdDateTime"`
	ReasonCode      string      `xml:"cim:reason.code,omitempty"`
	Series          []xmlSeries `xml:"cim:Series"`
}

type partyID struct {
	CodingScheme string `xml:"codingScheme,attr"`
	Value        string `xml:",chardata"`
}

type xmlSeries struct {
	MRID                  string     `xml:"cim:mRID"`
	OriginalTransactionID string     `xml:"cim:originalTransactionIDReference_Series.mRID,omitempty"`
	MeteringPointID       *partyID   `xml:"cim:marketEvaluationPoint.mRID,omitempty"`
	MeteringPointType     string     `xml:"cim:marketEvaluationPoint.type,omitempty"`
	SettlementMethod      string     `xml:"cim:marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea              *partyID   `xml:"cim:meteringGridArea_Domain.mRID,omitempty"`
	EnergySupplier        *partyID   `xml:"cim:energySupplier_MarketParticipant.mRID,omitempty"`
	Unit                  string     `xml:"cim:quantity_Measure_Unit.name,omitempty"`
	Reason                *xmlReason `xml:"cim:Reason,omitempty"`
	Period                *xmlPeriod `xml:"cim:Period,omitempty"`
}

type xmlReason struct {
	Code string `xml:"cim:code"`
	Text string `xml:"cim:text,omitempty"`
}

type xmlPeriod struct {
	Resolution   string          `xml:"cim:resolution"`
	TimeInterval xmlTimeInterval `xml:"cim:timeInterval"`
	Points       []xmlPoint      `xml:"cim:Point"`
}

type xmlTimeInterval struct {
	Start string `xml:"cim:start"`
	End   string `xml:"cim:end"`
}

type xmlPoint struct {
	Position int    `xml:"cim:position"`
	Quantity string `xml:"cim:quantity"`
	Quality  string `xml:"cim:quality,omitempty"`
}

func measureSeries(d documents.Details, record documents.MarketActivityRecord) (xmlSeries, error) {
	r, ok := record.(documents.MeasureDataRecord)
	if !ok {
		return xmlSeries{}, seriesTypeError(d, record)
	}
	return xmlSeries{
		MRID:              r.ID,
		MeteringPointID:   &partyID{CodingScheme: codingSchemeGS1, Value: r.MeteringPointID},
		MeteringPointType: r.MeteringPointType,
		Unit:              r.Unit,
		Period: &xmlPeriod{
			Resolution: r.Resolution,
			TimeInterval: xmlTimeInterval{
				Start: documents.FormatTimestamp(r.PeriodStart),
				End:   documents.FormatTimestamp(r.PeriodEnd),
			},
			Points: xmlPoints(r.Points),
		},
	}, nil
}

func aggregatedSeries(d documents.Details, record documents.MarketActivityRecord) (xmlSeries, error) {
	r, ok := record.(documents.AggregatedDataRecord)
	if !ok {
		return xmlSeries{}, seriesTypeError(d, record)
	}
	series := xmlSeries{
		MRID:              r.ID,
		MeteringPointType: r.MeteringPointType,
		SettlementMethod:  r.SettlementMethod,
		GridArea:          &partyID{CodingScheme: "NDK", Value: r.GridArea},
		Unit:              r.Unit,
		Period: &xmlPeriod{
			Resolution: r.Resolution,
			TimeInterval: xmlTimeInterval{
				Start: documents.FormatTimestamp(r.PeriodStart),
				End:   documents.FormatTimestamp(r.PeriodEnd),
			},
			Points: xmlPoints(r.Points),
		},
	}
	if r.EnergySupplier != "" {
		series.EnergySupplier = &partyID{CodingScheme: codingSchemeGS1, Value: r.EnergySupplier}
	}
	return series, nil
}

func rejectSeries(d documents.Details, record documents.MarketActivityRecord) (xmlSeries, error) {
	r, ok := record.(documents.RejectRecord)
	if !ok {
		return xmlSeries{}, seriesTypeError(d, record)
	}
	return xmlSeries{
		MRID:                  r.ID,
		OriginalTransactionID: r.OriginalTransactionReference,
		Reason: &xmlReason{
			Code: r.ReasonCode,
			Text: r.ReasonText,
		},
	}, nil
}

func xmlPoints(points []documents.MeasurePoint) []xmlPoint {
	out := make([]xmlPoint, 0, len(points))
	for _, p := range points {
		out = append(out, xmlPoint{
			Position: p.Position,
			Quantity: p.Quantity.String(),
			Quality:  p.Quality,
		})
	}
	return out
}

func seriesTypeError(d documents.Details, record documents.MarketActivityRecord) error {
	return pkgerrors.New(pkgerrors.CodeSchema,
		fmt.Sprintf("%s/%s: unexpected record kind %T", d.Type, d.Format, record))
}

// checkXMLSeriesCount re-parses the produced bytes and verifies one series
// element per record made it into the document.
func checkXMLSeriesCount(data []byte, localName string, want int) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	count := 0
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeSchema, err, "produced document is not well-formed xml")
		}
		if start, ok := token.(xml.StartElement); ok && start.Name.Local == localName {
			count++
		}
	}
	if count != want {
		return pkgerrors.New(pkgerrors.CodeSchema,
			fmt.Sprintf("produced document has %d series, want %d", count, want))
	}
	return nil
}
