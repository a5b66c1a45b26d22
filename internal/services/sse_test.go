package services

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDecoder(t *testing.T) {
	t.Run("Progress Frames", func(t *testing.T) {
		dec := NewDecoder(strings.NewReader("data: 10\n\ndata: 40\n\ndata: 100\n\n"))

		for _, want := range []string{"10", "40", "100"} {
			ev, err := dec.Next()
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if ev.Data != want {
				t.Errorf("expected data %q, got %q", want, ev.Data)
			}
		}

		if _, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("CRLF, Comments and Fields", func(t *testing.T) {
		input := ": ping\r\n\r\nevent: progress\r\nid: 7\r\nretry: 1500\r\ndata: 55\r\n\r\n"
		ev, err := NewDecoder(strings.NewReader(input)).Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}

		want := Event{ID: "7", Type: "progress", Data: "55", Retry: 1500}
		if ev != want {
			t.Errorf("expected %+v, got %+v", want, ev)
		}
	})

	t.Run("Multi-line Data", func(t *testing.T) {
		ev, err := NewDecoder(strings.NewReader("data: a\ndata:b\n\n")).Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev.Data != "a\nb" {
			t.Errorf("expected joined data, got %q", ev.Data)
		}
	})

	t.Run("Incomplete Event At EOF", func(t *testing.T) {
		_, err := NewDecoder(strings.NewReader("data: 20\n")).Next()
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF for unterminated event, got %v", err)
		}
	})
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		data  string
		want  int
		valid bool
	}{
		{"0", 0, true},
		{" 42 ", 42, true},
		{"100", 100, true},
		{"-1", -1, true},
		{"150", 100, true},
		{"-5", 0, false},
		{"12.5", 0, false},
		{"done", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, ok := ParseProgress(tt.data)
			if ok != tt.valid || got != tt.want {
				t.Errorf("ParseProgress(%q) = (%d, %v), want (%d, %v)", tt.data, got, ok, tt.want, tt.valid)
			}
		})
	}
}
