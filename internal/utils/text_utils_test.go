package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestStripHTML(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text passes through",
			in:   "Votre facture est jointe",
			want: "Votre facture est jointe",
		},
		{
			name: "tags removed",
			in:   "<html><body><p>Votre <b>facture</b></p></body></html>",
			want: "Votre facture",
		},
		{
			name: "tags with attributes removed",
			in:   `<a href="https://example.com">unsubscribe</a>`,
			want: "unsubscribe",
		},
		{
			name: "lone angle bracket survives",
			in:   "total > 100 EUR",
			want: "total > 100 EUR",
		},
		{
			name: "empty body",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tp.StripHTML(tc.in))
		})
	}
}

func TestFold(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "facture", tp.Fold("FACTURE"))
	assert.Equal(t, tp.Fold("Über"), tp.Fold("ÜBER"))
	assert.Equal(t, "newsletter", tp.Fold("NewsLetter"))
}

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "short", tp.TruncateText("short", 100))
	assert.Equal(t, "abc", tp.TruncateText("abcdef", 3))
	assert.Equal(t, "unbounded", tp.TruncateText("unbounded", 0))
}

func TestTruncateTextKeepsValidUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	// "é" is two bytes; cutting at 4 would split the second rune
	in := "béé"
	out := tp.TruncateText(in, 4)

	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "bé", out)
}

func TestProcessBody(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	body := "<p>" + strings.Repeat("facture ", 10) + "</p>"
	out := tp.ProcessBody(body, 20)

	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 20)
	assert.False(t, strings.Contains(out, "<"))
}
