package documents

import (
	"encoding/json"
	"fmt"
	"sync"

	pkgerrors "github.com/nordvolt/edi-hub/pkg/errors"
	"github.com/nordvolt/edi-hub/pkg/enums"
)

type recordDecoder func(payload json.RawMessage) (MarketActivityRecord, error)

// RecordParser decodes persisted payload blobs back into typed records,
// keyed by document type.
type RecordParser struct {
	mtx      sync.RWMutex
	decoders map[enums.DocumentType]recordDecoder
}

// NewRecordParser builds a parser with decoders for every known document type.
func NewRecordParser() *RecordParser {
	p := &RecordParser{decoders: make(map[enums.DocumentType]recordDecoder)}
	p.Register(enums.TypeNotifyValidatedMeasureData, func(payload json.RawMessage) (MarketActivityRecord, error) {
		var record MeasureDataRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, err
		}
		return record, nil
	})
	p.Register(enums.TypeNotifyAggregatedMeasureData, func(payload json.RawMessage) (MarketActivityRecord, error) {
		var record AggregatedDataRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, err
		}
		return record, nil
	})
	p.Register(enums.TypeRejectRequestMeasureData, func(payload json.RawMessage) (MarketActivityRecord, error) {
		var record RejectRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, err
		}
		return record, nil
	})
	return p
}

// Register stores a decoder for the given document type.
func (p *RecordParser) Register(documentType enums.DocumentType, decoder recordDecoder) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.decoders[documentType] = decoder
}

// Parse decodes a payload blob into the record type declared by documentType.
func (p *RecordParser) Parse(documentType enums.DocumentType, payload json.RawMessage) (MarketActivityRecord, error) {
	p.mtx.RLock()
	decoder, ok := p.decoders[documentType]
	p.mtx.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration,
			fmt.Sprintf("no record decoder registered for %s", documentType))
	}
	record, err := decoder(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err,
			fmt.Sprintf("decoding %s record", documentType))
	}
	return record, nil
}
