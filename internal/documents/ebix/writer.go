// Package ebix implements the ebIX XML market document writers.
package ebix

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/pkg/enums"
	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
)

// The ebIX schemas cap identifier fields at 35 characters; the CIM schemas
// allow longer values for the same logical field.
const maxTransactionRefLen = 35

const (
	schemeAgencyGS1 = "9"
	listAgencyEbix  = "260"
)

type payloadFunc func(d documents.Details, record documents.MarketActivityRecord) (payloadTimeSeries, error)

// Writer renders one document type as an ebIX XML document. The payload
// function is the only per-type part; the header and process context are
// shared.
type Writer struct {
	details documents.Details
	payload payloadFunc
}

// NewValidatedMeasureWriter writes NotifyValidatedMeasureData documents.
func NewValidatedMeasureWriter() *Writer {
	return &Writer{
		details: documents.Details{
			Type:                 enums.TypeNotifyValidatedMeasureData,
			Format:               enums.FormatEbix,
			RootElement:          "DK_NotifyValidatedMeasureData",
			Namespace:            "un:unece:260:data:EEM-DK_NotifyValidatedMeasureData:v3",
			TypeCode:             enums.TypeNotifyValidatedMeasureData.Code(),
			ContentType:          enums.FormatEbix.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		payload: measurePayload,
	}
}

// NewAggregatedMeasureWriter writes NotifyAggregatedMeasureData documents.
func NewAggregatedMeasureWriter() *Writer {
	return &Writer{
		details: documents.Details{
			Type:                 enums.TypeNotifyAggregatedMeasureData,
			Format:               enums.FormatEbix,
			RootElement:          "DK_NotifyAggregatedMeasureData",
			Namespace:            "un:unece:260:data:EEM-DK_NotifyAggregatedMeasureData:v3",
			TypeCode:             enums.TypeNotifyAggregatedMeasureData.Code(),
			ContentType:          enums.FormatEbix.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		payload: aggregatedPayload,
	}
}

// NewRejectWriter writes RejectRequestMeasureData documents.
func NewRejectWriter() *Writer {
	return &Writer{
		details: documents.Details{
			Type:                 enums.TypeRejectRequestMeasureData,
			Format:               enums.FormatEbix,
			RootElement:          "DK_RejectRequestMeasureData",
			Namespace:            "un:unece:260:data:EEM-DK_RejectRequestMeasureData:v3",
			TypeCode:             enums.TypeRejectRequestMeasureData.Code(),
			ContentType:          enums.FormatEbix.ContentType(),
			MaxTransactionRefLen: maxTransactionRefLen,
		},
		payload: rejectPayload,
	}
}

func (w *Writer) HandlesType(documentType enums.DocumentType) bool {
	return documentType == w.details.Type
}

func (w *Writer) HandlesFormat(format enums.DocumentFormat) bool {
	return format == w.details.Format
}

func (w *Writer) Write(header documents.Header, records []documents.MarketActivityRecord) ([]byte, error) {
	if err := w.details.ValidateHeader(header); err != nil {
		return nil, err
	}

	doc := document{
		XMLName:   xml.Name{Local: "ns0:" + w.details.RootElement},
		Namespace: w.details.Namespace,
		Header: headerEnergyDocument{
			Identification: header.MessageID.String(),
			DocumentType:   listValue{ListAgency: listAgencyEbix, Value: w.details.TypeCode},
			Creation:       documents.FormatTimestamp(header.CreatedAt),
			Sender:         energyParty{Identification: schemeValue{SchemeAgency: schemeAgencyGS1, Value: header.SenderNumber}},
			Recipient:      energyParty{Identification: schemeValue{SchemeAgency: schemeAgencyGS1, Value: header.ReceiverNumber}},
		},
		Context: processEnergyContext{
			BusinessProcess:     listValue{ListAgency: listAgencyEbix, Value: string(header.BusinessReason)},
			BusinessProcessRole: listValue{ListAgency: listAgencyEbix, Value: string(header.ReceiverRole)},
		},
	}
	for _, record := range records {
		if err := w.details.ValidateRecord(record); err != nil {
			return nil, err
		}
		series, err := w.payload(w.details, record)
		if err != nil {
			return nil, err
		}
		doc.Payload = append(doc.Payload, series)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshaling ebix document")
	}
	out := append([]byte(xml.Header), body...)
	out = append(out, '\n')

	if err := checkSeriesCount(out, len(records)); err != nil {
		return nil, err
	}
	return out, nil
}

type document struct {
	XMLName   xml.Name
	Namespace string               `xml:"xmlns:ns0,attr"`
	Header    headerEnergyDocument `xml:"ns0:HeaderEnergyDocument"`
	Context   processEnergyContext `xml:"ns0:ProcessEnergyContext"`
	Payload   []payloadTimeSeries  `xml:"ns0:PayloadEnergyTimeSeries"`
}

type headerEnergyDocument struct {
	Identification string      `xml:"ns0:Identification"`
	DocumentType   listValue   `xml:"ns0:DocumentType"`
	Creation       string      `xml:"ns0:Creation"`
	Sender         energyParty `xml:"ns0:SenderEnergyParty"`
	Recipient      energyParty `xml:"ns0:RecipientEnergyParty"`
}

type processEnergyContext struct {
	BusinessProcess     listValue `xml:"ns0:EnergyBusinessProcess"`
	BusinessProcessRole listValue `xml:"ns0:EnergyBusinessProcessRole"`
}

type energyParty struct {
	Identification schemeValue `xml:"ns0:Identification"`
}

type schemeValue struct {
	SchemeAgency string `xml:"schemeAgencyIdentifier,attr"`
	Value        string `xml:",chardata"`
}

type listValue struct {
	ListAgency string `xml:"listAgencyIdentifier,attr"`
	Value      string `xml:",chardata"`
}

type payloadTimeSeries struct {
	Identification   string              `xml:"ns0:Identification"`
	OriginalDocument string              `xml:"ns0:OriginalBusinessDocument,omitempty"`
	Function         string              `xml:"ns0:Function,omitempty"`
	Period           *observationPeriod  `xml:"ns0:ObservationTimeSeriesPeriod,omitempty"`
	MeteringPoint    *domainLocation     `xml:"ns0:MeteringPointDomainLocation,omitempty"`
	GridArea         *domainLocation     `xml:"ns0:MeteringGridAreaUsedDomainLocation,omitempty"`
	EnergySupplier   *energyParty        `xml:"ns0:BalanceSupplierInvolvedEnergyParty,omitempty"`
	Product          *includedProduct    `xml:"ns0:IncludedProductCharacteristic,omitempty"`
	Observations     []intervalEnergyObs `xml:"ns0:IntervalEnergyObservation"`
	StatusReason     *statusReason       `xml:"ns0:StatusEnergyDocument,omitempty"`
}

type observationPeriod struct {
	ResolutionDuration string `xml:"ns0:ResolutionDuration"`
	Start              string `xml:"ns0:Start"`
	End                string `xml:"ns0:End"`
}

type domainLocation struct {
	Identification schemeValue `xml:"ns0:Identification"`
}

type includedProduct struct {
	Identification string `xml:"ns0:Identification"`
	UnitType       string `xml:"ns0:UnitType"`
}

type intervalEnergyObs struct {
	Position        int    `xml:"ns0:Position"`
	EnergyQuantity  string `xml:"ns0:EnergyQuantity"`
	QuantityQuality string `xml:"ns0:QuantityQuality,omitempty"`
}

type statusReason struct {
	StatusType string `xml:"ns0:StatusType"`
	Reason     string `xml:"ns0:ResponseReasonType"`
	Text       string `xml:"ns0:Text,omitempty"`
}

func measurePayload(d documents.Details, record documents.MarketActivityRecord) (payloadTimeSeries, error) {
	r, ok := record.(documents.MeasureDataRecord)
	if !ok {
		return payloadTimeSeries{}, payloadTypeError(d, record)
	}
	return payloadTimeSeries{
		Identification: r.ID,
		Period: &observationPeriod{
			ResolutionDuration: r.Resolution,
			Start:              documents.FormatTimestamp(r.PeriodStart),
			End:                documents.FormatTimestamp(r.PeriodEnd),
		},
		MeteringPoint: &domainLocation{
			Identification: schemeValue{SchemeAgency: schemeAgencyGS1, Value: r.MeteringPointID},
		},
		Product: &includedProduct{
			Identification: "8716867000030",
			UnitType:       r.Unit,
		},
		Observations: observations(r.Points),
	}, nil
}

func aggregatedPayload(d documents.Details, record documents.MarketActivityRecord) (payloadTimeSeries, error) {
	r, ok := record.(documents.AggregatedDataRecord)
	if !ok {
		return payloadTimeSeries{}, payloadTypeError(d, record)
	}
	series := payloadTimeSeries{
		Identification: r.ID,
		Period: &observationPeriod{
			ResolutionDuration: r.Resolution,
			Start:              documents.FormatTimestamp(r.PeriodStart),
			End:                documents.FormatTimestamp(r.PeriodEnd),
		},
		GridArea: &domainLocation{
			Identification: schemeValue{SchemeAgency: listAgencyEbix, Value: r.GridArea},
		},
		Product: &includedProduct{
			Identification: "8716867000030",
			UnitType:       r.Unit,
		},
		Observations: observations(r.Points),
	}
	if r.EnergySupplier != "" {
		series.EnergySupplier = &energyParty{
			Identification: schemeValue{SchemeAgency: schemeAgencyGS1, Value: r.EnergySupplier},
		}
	}
	return series, nil
}

func rejectPayload(d documents.Details, record documents.MarketActivityRecord) (payloadTimeSeries, error) {
	r, ok := record.(documents.RejectRecord)
	if !ok {
		return payloadTimeSeries{}, payloadTypeError(d, record)
	}
	return payloadTimeSeries{
		Identification:   r.ID,
		OriginalDocument: r.OriginalTransactionReference,
		Function:         "5", // rejection
		StatusReason: &statusReason{
			StatusType: "41",
			Reason:     r.ReasonCode,
			Text:       r.ReasonText,
		},
	}, nil
}

func observations(points []documents.MeasurePoint) []intervalEnergyObs {
	out := make([]intervalEnergyObs, 0, len(points))
	for _, p := range points {
		out = append(out, intervalEnergyObs{
			Position:        p.Position,
			EnergyQuantity:  p.Quantity.String(),
			QuantityQuality: p.Quality,
		})
	}
	return out
}

func payloadTypeError(d documents.Details, record documents.MarketActivityRecord) error {
	return pkgerrors.New(pkgerrors.CodeSchema,
		fmt.Sprintf("%s/%s: unexpected record kind %T", d.Type, d.Format, record))
}

// checkSeriesCount re-parses the produced bytes and verifies one payload
// series per record made it into the document.
func checkSeriesCount(data []byte, want int) error {
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
		if start, ok := token.(xml.StartElement); ok && start.Name.Local == "PayloadEnergyTimeSeries" {
			count++
		}
	}
	if count != want {
		return pkgerrors.New(pkgerrors.CodeSchema,
			fmt.Sprintf("produced document has %d series, want %d", count, want))
	}
	return nil
}
