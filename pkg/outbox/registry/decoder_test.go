package registry

import (
	"encoding/json"
	"testing"

	"github.com/nordvolt/edi-hub/pkg/enums"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventBundleDequeued, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	input := json.RawMessage(`{"bundleId":"b-1"}`)
	output, err := reg.Decode(enums.EventBundleDequeued, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["bundleId"] != "b-1" {
		t.Fatalf("unexpected output %+v", output)
	}

	if _, err := reg.Decode(enums.EventBundleDequeued, 2, input); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}
