package domain

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		id       string
		maxLen   int
		want     string
	}{
		{"short question kept", "Will it rain?", "1", 60, "Will it rain?"},
		{"long ascii cut", "abcdefghij", "1", 8, "abcde..."},
		{"empty uses id", "", "12345", 60, "12345"},
		{"empty with long id", "", "0123456789012345678901234", 60, "01234567890123456789..."},
		{"multibyte cut on rune", "¿Ganará el Atlético la liga?", "1", 10, "¿Ganará..."},
		{"emoji not split", "🚀🚀🚀🚀🚀🚀", "1", 5, "🚀🚀..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateQuestion(tt.question, tt.id, tt.maxLen)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.maxLen)
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "0123456789", ShortID("0123456789abcdef"))
}
