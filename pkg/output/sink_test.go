package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/zberry/dump978/pkg/uat"
)

// svPayload is a minimal decodable state vector frame for address ABCDEF.
func svPayload() []byte {
	p := make([]byte, 18)
	p[1], p[2], p[3] = 0xab, 0xcd, 0xef
	return p
}

func TestRawSink(t *testing.T) {
	var buf bytes.Buffer
	sink := RawSink(&buf, nil)

	sink(uat.Batch{
		{Type: uat.DownlinkShort, Payload: []byte{0x0d, 0x15}, Timestamp: 1688410029108},
		{Type: uat.Uplink, Payload: []byte{0x00}, Timestamp: 1688410029200},
	})

	want := "-0d15;t=1688410029.108;\n+00;t=1688410029.200;\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := JSONSink(&buf, nil)

	sink(uat.Batch{
		{Type: uat.DownlinkShort, Payload: svPayload(), Timestamp: 1000},
		{Type: uat.Uplink, Payload: make([]byte, 34), Timestamp: 1000},
		{Type: uat.DownlinkShort, Payload: []byte{0x01}, Timestamp: 1000}, // undecodable
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 JSON line, got %d: %q", len(lines), buf.String())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if decoded["address"] != "ABCDEF" {
		t.Errorf("Expected address ABCDEF, got %v", decoded["address"])
	}
	if decoded["type"] != "downlink_short" {
		t.Errorf("Expected downlink_short, got %v", decoded["type"])
	}
	if _, ok := decoded["raw"]; !ok {
		t.Error("Expected raw field in JSON output")
	}
}

func TestJSONSinkSkipsEmptyBatches(t *testing.T) {
	var buf bytes.Buffer
	sink := JSONSink(&buf, nil)

	sink(uat.Batch{{Type: uat.Uplink, Payload: make([]byte, 34), Timestamp: 1000}})

	if buf.Len() != 0 {
		t.Errorf("Expected no output for uplink-only batch, got %q", buf.String())
	}
}
