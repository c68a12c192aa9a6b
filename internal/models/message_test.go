package models

import (
	"encoding/json"
	"testing"
)

func TestCursorUpdate_Decoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want CursorUpdate
	}{
		{"integers", `{"position":5,"selectionStart":2,"selectionEnd":7}`, CursorUpdate{5, 2, 7}},
		{"missing fields", `{"position":5}`, CursorUpdate{Position: 5}},
		{"nulls", `{"position":null,"selectionStart":null}`, CursorUpdate{}},
		{"fractional", `{"position":5.5,"selectionEnd":9.99}`, CursorUpdate{Position: 5, SelectionEnd: 9}},
		{"exponent", `{"position":1e2}`, CursorUpdate{Position: 100}},
		{"huge", `{"position":1e300}`, CursorUpdate{Position: maxOffset}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CursorUpdate
			if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCursorUpdate_RejectsNonNumbers(t *testing.T) {
	var got CursorUpdate
	if err := json.Unmarshal([]byte(`{"position":"abc"}`), &got); err == nil {
		t.Fatalf("expected an error, got %+v", got)
	}
}
