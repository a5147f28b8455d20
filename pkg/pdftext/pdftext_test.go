package pdftext

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a minimal single-generation PDF from numbered objects,
// computing the xref offsets as it writes.
func buildPDF(objects []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefPos)
	return buf.Bytes()
}

func samplePDF() []byte {
	content := "BT /F1 12 Tf 72 720 Td (Quarterly brief) Tj ET"
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R /Annots [6 0 R 7 0 R] >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Annot /Subtype /Text /Rect [100 100 120 120] /Contents (Needs legal review) >>",
		"<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] >>",
	})
}

func TestExtractTextAndAnnotations(t *testing.T) {
	doc, err := Extract(samplePDF())
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Quarterly brief")
	assert.Equal(t, []string{"Needs legal review"}, doc.Annotations)
}

func TestExtractRejectsNonPDF(t *testing.T) {
	_, err := Extract([]byte("this is not a pdf"))
	require.Error(t, err)
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	_, err := Extract(nil)
	require.Error(t, err)
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.pdf")
	require.NoError(t, os.WriteFile(path, samplePDF(), 0o600))

	doc, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Quarterly brief")
}

func TestExtractFileMissing(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "absent.pdf"))
	require.Error(t, err)
}
