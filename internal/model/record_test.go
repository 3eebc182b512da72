package model

import (
	"encoding/json"
	"testing"
)

func TestRecordEmpty(t *testing.T) {
	if !(Record{}).Empty() {
		t.Fatalf("empty record should report empty")
	}
	var nilRecord Record
	if !nilRecord.Empty() {
		t.Fatalf("nil record should report empty")
	}
	if (Record{KeyTransactionHash: "0x01"}).Empty() {
		t.Fatalf("record with a field should not be empty")
	}
}

func TestRecordJSONKeepsWireNames(t *testing.T) {
	rec := Record{
		KeyTransactionHash: "0xabc",
		KeyAmount:          int64(42),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["transactionHash"].(string); !ok {
		t.Fatalf("transactionHash should be string")
	}
	if _, ok := decoded["value"].(float64); !ok {
		t.Fatalf("value should be numeric")
	}
}

func TestPendingKeysOmitBlockPlacement(t *testing.T) {
	for _, key := range PendingTransactionKeys {
		if key == KeyBlockHash || key == KeyBlockNumber || key == KeyTransactionIndex || key == KeyNonce {
			t.Fatalf("pending keys should not contain %s", key)
		}
	}
}
