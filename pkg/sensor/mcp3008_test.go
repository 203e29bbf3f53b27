package sensor

import (
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		ch   Channel
		want [3]byte
	}{
		{0, [3]byte{0x01, 0x80, 0x00}},
		{1, [3]byte{0x01, 0x90, 0x00}},
		{5, [3]byte{0x01, 0xD0, 0x00}},
		{7, [3]byte{0x01, 0xF0, 0x00}},
	}
	for _, tt := range tests {
		if got := encodeFrame(tt.ch); got != tt.want {
			t.Fatalf("encodeFrame(%d) = % X; want % X", tt.ch, got, tt.want)
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		rx   []byte
		code uint16
		ok   bool
	}{
		{[]byte{0x00, 0x00, 0x00}, 0, true},
		{[]byte{0xFF, 0x03, 0xFF}, 1023, true},
		{[]byte{0x00, 0x02, 0x01}, 513, true},
		// garbage above the null bit is ignored
		{[]byte{0xAB, 0xF9, 0x10}, 0x110, true},
		{[]byte{0xFF, 0xFF, 0xFF}, 0, false},
		{[]byte{0x00, 0x04, 0x00}, 0, false},
		{[]byte{0x00, 0x00}, 0, false},
	}
	for _, tt := range tests {
		code, ok := decodeFrame(tt.rx)
		if ok != tt.ok || code != tt.code {
			t.Fatalf("decodeFrame(% X) = %d,%v; want %d,%v", tt.rx, code, ok, tt.code, tt.ok)
		}
	}
}

func TestMCP3008PollWithoutStart(t *testing.T) {
	m := &MCP3008Transport{settle: 1}
	_, err := m.Poll()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}
