package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

// MarketActivityRecord is one business transaction inside a market document.
// Producers serialize records as JSON into the message payload column; the
// writer parses them back just before serialization.
type MarketActivityRecord interface {
	TransactionID() string
	RecordType() enums.DocumentType
}

// MeasurePoint is a single observation in a time series.
type MeasurePoint struct {
	Position int             `json:"position"`
	Quantity decimal.Decimal `json:"quantity"`
	Quality  string          `json:"quality,omitempty"`
}

// MeasureDataRecord carries validated metering values for one metering point.
type MeasureDataRecord struct {
	ID                string         `json:"transactionId"`
	MeteringPointID   string         `json:"meteringPointId"`
	MeteringPointType string         `json:"meteringPointType"`
	Resolution        string         `json:"resolution"`
	Unit              string         `json:"unit"`
	PeriodStart       time.Time      `json:"periodStart"`
	PeriodEnd         time.Time      `json:"periodEnd"`
	Points            []MeasurePoint `json:"points"`
}

func (r MeasureDataRecord) TransactionID() string { return r.ID }

func (r MeasureDataRecord) RecordType() enums.DocumentType {
	return enums.TypeNotifyValidatedMeasureData
}

// AggregatedDataRecord carries aggregated results for one grid area.
type AggregatedDataRecord struct {
	ID                string         `json:"transactionId"`
	GridArea          string         `json:"gridArea"`
	EnergySupplier    string         `json:"energySupplier,omitempty"`
	MeteringPointType string         `json:"meteringPointType"`
	SettlementMethod  string         `json:"settlementMethod,omitempty"`
	Resolution        string         `json:"resolution"`
	Unit              string         `json:"unit"`
	PeriodStart       time.Time      `json:"periodStart"`
	PeriodEnd         time.Time      `json:"periodEnd"`
	Points            []MeasurePoint `json:"points"`
}

func (r AggregatedDataRecord) TransactionID() string { return r.ID }

func (r AggregatedDataRecord) RecordType() enums.DocumentType {
	return enums.TypeNotifyAggregatedMeasureData
}

// RejectRecord answers a received request that could not be processed.
type RejectRecord struct {
	ID                           string `json:"transactionId"`
	OriginalTransactionReference string `json:"originalTransactionReference"`
	ReasonCode                   string `json:"reasonCode"`
	ReasonText                   string `json:"reasonText,omitempty"`
}

func (r RejectRecord) TransactionID() string { return r.ID }

func (r RejectRecord) RecordType() enums.DocumentType {
	return enums.TypeRejectRequestMeasureData
}
