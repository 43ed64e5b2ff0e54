package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "trims whitespace", input: []string{"  a:9092  ", "b:9092  "}, expected: []string{"a:9092", "b:9092"}},
		{name: "removes duplicates preserving order", input: []string{"b", "a", "b", "c", "a"}, expected: []string{"b", "a", "c"}},
		{name: "removes empty strings", input: []string{"a", "", "  ", "b"}, expected: []string{"a", "b"}},
		{name: "preserves case", input: []string{"Host", "host"}, expected: []string{"Host", "host"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"localhost:9092"}, SplitList("localhost:9092"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, b:9092 ,a:9092,"))
}
