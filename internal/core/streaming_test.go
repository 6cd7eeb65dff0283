package core

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b")...),
			expected: "a,b",
		},
		{
			name:     "file without BOM",
			input:    []byte("a,b"),
			expected: "a,b",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("a,b\n1,2"),
			expected: "a,b\n1,2",
		},
		{
			name:     "valid multibyte",
			input:    []byte("مدينة,café"),
			expected: "مدينة,café",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo",
		},
		{
			name:     "latin-1 e acute",
			input:    []byte{'c', 'a', 'f', 0xE9},
			expected: "caf?",
		},
		{
			name:     "truncated sequence at EOF",
			input:    []byte{'x', 0xE2, 0x82},
			expected: "x??",
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewStreamingUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingUTF8Sanitizer_SplitSequences(t *testing.T) {
	// OneByteReader forces every multi-byte rune to straddle reads.
	input := strings.Repeat("€ مرحبا ", 50)
	reader := NewStreamingUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input)))

	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != input {
		t.Errorf("split sequences were altered:\n got %q\nwant %q", result, input)
	}
}

func TestStreamingUTF8Sanitizer_ShortBuffers(t *testing.T) {
	input := "id,\xff" + strings.Repeat("مرحبا €", 20)
	want := "id,?" + strings.Repeat("مرحبا €", 20)

	for size := 1; size <= 5; size++ {
		reader := NewStreamingUTF8Sanitizer(iotest.HalfReader(strings.NewReader(input)))
		buf := make([]byte, size)
		var got []byte
		for {
			n, err := reader.Read(buf)
			got = append(got, buf[:n]...)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("size %d: unexpected error: %v", size, err)
			}
		}
		if string(got) != want {
			t.Errorf("size %d: got %q, want %q", size, got, want)
		}
	}
}

func TestNewCSVSource(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	result, err := io.ReadAll(newCSVSource(bytes.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "he?lo" {
		t.Errorf("got %q, want %q", string(result), "he?lo")
	}
}
