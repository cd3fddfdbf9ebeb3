package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pdfHeader = []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

func TestDetect(t *testing.T) {
	d := New()
	cases := []struct {
		name     string
		data     []byte
		file     string
		declared string
		want     Kind
	}{
		{"declared pdf", pdfHeader, "cv.pdf", "application/pdf", PDF},
		{"plain text", []byte("Jane Doe\nEngineer"), "cv.txt", "text/plain", Text},
		{"text with charset", []byte("Jane Doe"), "cv.txt", "text/plain; charset=utf-8", Text},
		{"markdown by type", []byte("# Jane"), "cv", "text/markdown", Markdown},
		{"markdown by extension", []byte("# Jane"), "cv.MD", "application/x-unknown", Markdown},
		{"octet-stream pdf", pdfHeader, "upload.bin", "application/octet-stream", PDF},
		{"undeclared markdown", []byte("# Jane\n- Go"), "cv.md", "", Markdown},
		{"undeclared binary", []byte{0x00, 0x01, 0x02, 0xff}, "cv.txt", "", Unsupported},
		{"pdf posing as text", pdfHeader, "cv.txt", "text/plain", Unsupported},
		{"docx", []byte("PK\x03\x04"), "cv.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Unsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := d.Detect(tc.data, tc.file, tc.declared)
			assert.Equal(t, tc.want, info.Kind)
			assert.Equal(t, tc.want != Unsupported, info.Supported())
		})
	}
}

func TestDetect_UnsupportedDescription(t *testing.T) {
	info := New().Detect([]byte{0x89, 'P', 'N', 'G'}, "photo.png", "image/png")
	assert.Equal(t, UnsupportedMessage, info.Description)
	assert.Equal(t, ".png", info.Extension)
}
