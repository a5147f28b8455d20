package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveType(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"brief.pdf", "document"},
		{"BRIEF.PDF", "document"},
		{"budget.xlsx", "spreadsheet"},
		{"pitch.pptx", "presentation"},
		{"logo.png", "image"},
		{"cut-v2.mp4", "video"},
		{"mix.wav", "audio"},
		{"assets.zip", "archive"},
		{"bundle.tar.gz", "archive"},

		// No recognized extension, naming-convention fallback.
		{"Storyboard_v3", "image"},
		{"final cut", "video"},
		{"meeting notes", "document"},
		{"voiceover take 2", "audio"},

		// Nothing recognizable.
		{"xyz", "other"},
		{"", "other"},
	}
	for _, tc := range tests {
		t.Run(tc.fileName, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveType(tc.fileName))
		})
	}
}
