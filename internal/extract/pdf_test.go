package extract

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a \n\t b\r\n\nc", "a b c"},
		{"keeps punctuation", `Cost: $5 (approx.) - 50% "ok"; really? yes! #1 @home`, `Cost: $5 (approx.) - 50% "ok"; really? yes! #1 @home`},
		{"drops symbols", "alpha • beta → gamma", "alpha beta gamma"},
		{"keeps non-ascii letters", "café über naïve", "café über naïve"},
		{"trims", "   padded   ", "padded"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestPDFExtractor_ExtractText_Corrupt(t *testing.T) {
	e := NewPDFExtractor(nil)

	_, err := e.ExtractText("broken.pdf", []byte("this is not a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.pdf")

	_, err = e.ExtractText("empty.pdf", nil)
	require.Error(t, err)
}

// buildPDF writes a minimal uncompressed PDF with one Helvetica text line per
// page. An empty string produces a page without text.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPDFExtractor_ExtractText(t *testing.T) {
	e := NewPDFExtractor(nil)

	t.Run("joins text of non-empty pages", func(t *testing.T) {
		data := buildPDF("Photosynthesis happens in the chloroplast.", "", "Mitochondria release energy.")
		text, err := e.ExtractText("biology.pdf", data)
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis happens in the chloroplast. Mitochondria release energy.", text)
	})

	t.Run("normalizes extracted text", func(t *testing.T) {
		text, err := e.ExtractText("notes.pdf", buildPDF("Cells   divide \\267 by mitosis"))
		require.NoError(t, err)
		assert.Equal(t, "Cells divide by mitosis", text)
	})

	t.Run("document without text", func(t *testing.T) {
		_, err := e.ExtractText("scan.pdf", buildPDF("", ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoText)
		assert.Contains(t, err.Error(), "scan.pdf")
	})
}
