package cim

import (
	"encoding/json"
	"fmt"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

type jsonSeriesFunc func(d documents.Details, record documents.MarketActivityRecord) (jsonSeries, error)

// JSONWriter renders one document type as the CIM JSON market document. The
// logical structure matches the XML rendering; only the field naming and
// coded-value wrapping differ.
type JSONWriter struct {
	details documents.Details
	series  jsonSeriesFunc
}

// NewValidatedMeasureJSONWriter writes NotifyValidatedMeasureData documents.
func NewValidatedMeasureJSONWriter() *JSONWriter {
	return &JSONWriter{
		details: documents.Details{
			Type:                 enums.TypeNotifyValidatedMeasureData,
			Format:               enums.FormatCIMJSON,
			RootElement:          "NotifyValidatedMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:notifyvalidatedmeasuredata:0:1",
			TypeCode:             enums.TypeNotifyValidatedMeasureData.Code(),
			ContentType:          enums.FormatCIMJSON.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: measureJSONSeries,
	}
}

// NewAggregatedMeasureJSONWriter writes NotifyAggregatedMeasureData documents.
func NewAggregatedMeasureJSONWriter() *JSONWriter {
	return &JSONWriter{
		details: documents.Details{
			Type:                 enums.TypeNotifyAggregatedMeasureData,
			Format:               enums.FormatCIMJSON,
			RootElement:          "NotifyAggregatedMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:notifyaggregatedmeasuredata:0:1",
			TypeCode:             enums.TypeNotifyAggregatedMeasureData.Code(),
			ContentType:          enums.FormatCIMJSON.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: aggregatedJSONSeries,
	}
}

// NewRejectJSONWriter writes RejectRequestMeasureData documents.
func NewRejectJSONWriter() *JSONWriter {
	return &JSONWriter{
		details: documents.Details{
			Type:                 enums.TypeRejectRequestMeasureData,
			Format:               enums.FormatCIMJSON,
			RootElement:          "RejectRequestMeasureData_MarketDocument",
			Namespace:            "urn:ediel.org:measure:rejectrequestmeasuredata:0:1",
			TypeCode:             enums.TypeRejectRequestMeasureData.Code(),
			ContentType:          enums.FormatCIMJSON.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		series: rejectJSONSeries,
	}
}

func (w *JSONWriter) HandlesType(documentType enums.DocumentType) bool {
	return documentType == w.details.Type
}

func (w *JSONWriter) HandlesFormat(format enums.DocumentFormat) bool {
	return format == w.details.Format
}

func (w *JSONWriter) Write(header documents.Header, records []documents.MarketActivityRecord) ([]byte, error) {
	if err := w.details.ValidateHeader(header); err != nil {
		return nil, err
	}

	doc := jsonDocument{
		MRID:            header.MessageID.String(),
		Type:            codeValue{Value: w.details.TypeCode},
		ProcessType:     codeValue{Value: string(header.BusinessReason)},
		SenderID:        codedID{CodingScheme: codingSchemeGS1, Value: header.SenderNumber},
		SenderRole:      codeValue{Value: string(header.SenderRole)},
		ReceiverID:      codedID{CodingScheme: codingSchemeGS1, Value: header.ReceiverNumber},
		ReceiverRole:    codeValue{Value: string(header.ReceiverRole)},
		CreatedDateTime: documents.FormatTimestamp(header.CreatedAt),
		Series:          []jsonSeries{},
	}
	if header.ReasonCode != "" {
		doc.ReasonCode = &codeValue{Value: header.ReasonCode}
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

	// A single-key map keeps the root element name data-driven and still
	// marshals deterministically.
	out, err := json.MarshalIndent(map[string]jsonDocument{w.details.RootElement: doc}, "", "  ")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshaling cim json document")
	}
	out = append(out, '\n')

	if err := checkJSONSeriesCount(out, w.details.RootElement, len(records)); err != nil {
		return nil, err
	}
	return out, nil
}

type codeValue struct {
	Value string `json:"value"`
}

type codedID struct {
	CodingScheme string `json:"codingScheme"`
	Value        string `json:"value"`
}

type jsonDocument struct {
	MRID            string       `json:"mRID"`
	Type            codeValue    `json:"type"`
	ProcessType     codeValue    `json:"process.processType"`
	SenderID        codedID      `json:"sender_MarketParticipant.mRID"`
	SenderRole      codeValue    `json:"sender_MarketParticipant.marketRole.type"`
	ReceiverID      codedID      `json:"receiver_MarketParticipant.mRID"`
	ReceiverRole    codeValue    `json:"receiver_MarketParticipant.marketRole.type"`
	CreatedDateTime string       `json:"createdDateTime"`
	ReasonCode      *codeValue   `json:"reason.code,omitempty"`
	Series          []jsonSeries `json:"Series"`
}

type jsonSeries struct {
	MRID                  string      `json:"mRID"`
	OriginalTransactionID string      `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	MeteringPointID       *codedID    `json:"marketEvaluationPoint.mRID,omitempty"`
	MeteringPointType     *codeValue  `json:"marketEvaluationPoint.type,omitempty"`
	SettlementMethod      *codeValue  `json:"marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea              *codedID    `json:"meteringGridArea_Domain.mRID,omitempty"`
	EnergySupplier        *codedID    `json:"energySupplier_MarketParticipant.mRID,omitempty"`
	Unit                  *codeValue  `json:"quantity_Measure_Unit.name,omitempty"`
	Reason                *jsonReason `json:"Reason,omitempty"`
	Period                *jsonPeriod `json:"Period,omitempty"`
}

type jsonReason struct {
	Code codeValue `json:"code"`
	Text string    `json:"text,omitempty"`
}

type jsonPeriod struct {
	Resolution   string           `json:"resolution"`
	TimeInterval jsonTimeInterval `json:"timeInterval"`
	Points       []jsonPoint      `json:"Point"`
}

type jsonTimeInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type jsonPoint struct {
	Position int        `json:"position"`
	Quantity string     `json:"quantity"`
	Quality  *codeValue `json:"quality,omitempty"`
}

func measureJSONSeries(d documents.Details, record documents.MarketActivityRecord) (jsonSeries, error) {
	r, ok := record.(documents.MeasureDataRecord)
	if !ok {
		return jsonSeries{}, seriesTypeError(d, record)
	}
	return jsonSeries{
		MRID:              r.ID,
		MeteringPointID:   &codedID{CodingScheme: codingSchemeGS1, Value: r.MeteringPointID},
		MeteringPointType: optionalCode(r.MeteringPointType),
		Unit:              optionalCode(r.Unit),
		Period: &jsonPeriod{
			Resolution: r.Resolution,
			TimeInterval: jsonTimeInterval{
				Start: documents.FormatTimestamp(r.PeriodStart),
				End:   documents.FormatTimestamp(r.PeriodEnd),
			},
			Points: jsonPoints(r.Points),
		},
	}, nil
}

func aggregatedJSONSeries(d documents.Details, record documents.MarketActivityRecord) (jsonSeries, error) {
	r, ok := record.(documents.AggregatedDataRecord)
	if !ok {
		return jsonSeries{}, seriesTypeError(d, record)
	}
	series := jsonSeries{
		MRID:              r.ID,
		MeteringPointType: optionalCode(r.MeteringPointType),
		SettlementMethod:  optionalCode(r.SettlementMethod),
		GridArea:          &codedID{CodingScheme: "NDK", Value: r.GridArea},
		Unit:              optionalCode(r.Unit),
		Period: &jsonPeriod{
			Resolution: r.Resolution,
			TimeInterval: jsonTimeInterval{
				Start: documents.FormatTimestamp(r.PeriodStart),
				End:   documents.FormatTimestamp(r.PeriodEnd),
			},
			Points: jsonPoints(r.Points),
		},
	}
	if r.EnergySupplier != "" {
		series.EnergySupplier = &codedID{CodingScheme: codingSchemeGS1, Value: r.EnergySupplier}
	}
	return series, nil
}

func rejectJSONSeries(d documents.Details, record documents.MarketActivityRecord) (jsonSeries, error) {
	r, ok := record.(documents.RejectRecord)
	if !ok {
		return jsonSeries{}, seriesTypeError(d, record)
	}
	return jsonSeries{
		MRID:                  r.ID,
		OriginalTransactionID: r.OriginalTransactionReference,
		Reason: &jsonReason{
			Code: codeValue{Value: r.ReasonCode},
			Text: r.ReasonText,
		},
	}, nil
}

func jsonPoints(points []documents.MeasurePoint) []jsonPoint {
	out := make([]jsonPoint, 0, len(points))
	for _, p := range points {
		point := jsonPoint{
			Position: p.Position,
			Quantity: p.Quantity.String(),
		}
		if p.Quality != "" {
			point.Quality = &codeValue{Value: p.Quality}
		}
		out = append(out, point)
	}
	return out
}

func optionalCode(value string) *codeValue {
	if value == "" {
		return nil
	}
	return &codeValue{Value: value}
}

// checkJSONSeriesCount re-parses the produced bytes and verifies one series
// entry per record made it into the document.
func checkJSONSeriesCount(data []byte, rootElement string, want int) error {
	var parsed map[string]struct {
		Series []json.RawMessage `json:"Series"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSchema, err, "produced document is not valid json")
	}
	doc, ok := parsed[rootElement]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeSchema,
			fmt.Sprintf("produced document missing root element %s", rootElement))
	}
	if len(doc.Series) != want {
		return pkgerrors.New(pkgerrors.CodeSchema,
			fmt.Sprintf("produced document has %d series, want %d", len(doc.Series), want))
	}
	return nil
}
