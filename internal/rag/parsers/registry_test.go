package parsers

import (
	"errors"
	"strings"
	"testing"

	"careassist/internal/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExtractText(t *testing.T) {
	r := NewRegistry(nil)

	text, err := r.Extract("plan.txt", "text/plain", []byte("\ufeffDeductible: $500\r\nCopay: $20"))
	require.NoError(t, err)
	assert.Equal(t, "Deductible: $500\nCopay: $20", text)

	text, err = r.Extract("NOTES.MD", "", []byte("# Benefits"))
	require.NoError(t, err)
	assert.Equal(t, "# Benefits", text)
}

func TestTextParserNormalizesInput(t *testing.T) {
	text, err := NewTextParser().Parse(strings.NewReader("Copay\r$20\x00\r\nEOB \xff ok"))
	require.NoError(t, err)
	assert.Equal(t, "Copay\n$20\nEOB \uFFFD ok", text)
}

func TestRegistryRejectsEmptyText(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Extract("blank.txt", "text/plain", []byte("  \n\t"))
	assert.True(t, errors.Is(err, rag.ErrEmptyText))
}

func TestRegistryDocxUnsupported(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Extract("form.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK\x03\x04"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrUnsupportedFormat))
	assert.Equal(t, DocxUnsupportedMessage, err.Error())
}

func TestRegistryUnknownExtension(t *testing.T) {
	r := NewRegistry(nil)

	text, err := r.Extract("claims.log", "application/octet-stream", []byte("claim approved"))
	require.NoError(t, err)
	assert.Equal(t, "claim approved", text)

	text, err = r.Extract("README", "text/plain", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", text)

	_, err = r.Extract("image.bin", "application/octet-stream", []byte{0xff, 0xfe, 0x00, 0x81})
	assert.True(t, errors.Is(err, rag.ErrUnsupportedFormat))
}

func TestRegistryBrokenPDF(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Extract("policy.pdf", "application/pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrUnsupportedFormat))
}

func TestRegistryExtensions(t *testing.T) {
	r := NewRegistry(nil)
	assert.Subset(t, r.Extensions(), []string{".txt", ".md", ".pdf", ".docx"})
}
