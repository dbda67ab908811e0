package pdfdoc

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a one-page document with correct xref offsets.
func buildPDF(t *testing.T, pageText string) []byte {
	t.Helper()

	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", pageText)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 6 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Author (Jane Reporter) /Title (Quarterly Brief) /CreationDate (D:20230415093000+02'00') >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestDecodeReadsTextAndInfo(t *testing.T) {
	t.Parallel()

	content, doc, err := New().Decode(buildPDF(t, "Hello PDF"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Contains(t, content, "Hello")
	assert.Equal(t, "Jane Reporter", doc.Author())
	assert.Equal(t, "Quarterly Brief", doc.Title())

	created, ok := doc.CreationDate()
	require.True(t, ok)
	assert.True(t, created.Equal(time.Date(2023, 4, 15, 7, 30, 0, 0, time.UTC)))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := New().Decode([]byte("%PDF-1.4 not really a pdf"))
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"D:2021", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"D:20210704", time.Date(2021, 7, 4, 0, 0, 0, 0, time.UTC)},
		{"D:20210704123000Z", time.Date(2021, 7, 4, 12, 30, 0, 0, time.UTC)},
		{"20210704123000-05'00'", time.Date(2021, 7, 4, 17, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(tc.want), "%s: got %s", tc.in, got)
	}

	_, err := ParseDate("D:20")
	require.Error(t, err)
	_, err = ParseDate("yesterday")
	require.Error(t, err)
}
