package filetype

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the processing branch for an uploaded resume.
type Kind string

const (
	PDF         Kind = "pdf"
	Text        Kind = "text"
	Markdown    Kind = "markdown"
	Unsupported Kind = "unsupported"
)

// UnsupportedMessage is shown when an upload is neither PDF, TXT nor MD.
const UnsupportedMessage = "Unsupported file format. Please upload a PDF, TXT, or MD file."

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	Declared    string // content type sent by the client
	Sniffed     string // content type detected from magic bytes
	Extension   string
	Kind        Kind
	Description string
}

// Supported reports whether the upload can be turned into resume text.
func (i FileTypeInfo) Supported() bool { return i.Kind != Unsupported }

// Detector classifies uploads using the declared type, the file name and magic bytes.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies data. The declared content type and the extension decide the
// branch the same way the upload form does; magic bytes are used when the client sent a
// generic type, and to catch binaries posing as text.
func (d *Detector) Detect(data []byte, fileName, declared string) *FileTypeInfo {
	mt := mimetype.Detect(data)
	info := &FileTypeInfo{
		Declared:  BaseType(declared),
		Sniffed:   BaseType(mt.String()),
		Extension: strings.ToLower(filepath.Ext(fileName)),
	}

	log.Debug().Str("declared", info.Declared).Str("sniffed", info.Sniffed).Str("file", fileName).Msg("detected file type")

	switch {
	case info.Declared == "text/plain", info.Declared == "text/markdown", info.Extension == ".md":
		info.Kind = textKind(info)
		if !isTextual(info.Sniffed) {
			log.Warn().Str("sniffed", info.Sniffed).Str("file", fileName).Msg("text upload carries binary content")
			info.Kind = Unsupported
		}
	case info.Declared == "application/pdf":
		info.Kind = PDF
	case info.Declared == "" || info.Declared == "application/octet-stream":
		// no useful declaration, trust the bytes
		switch {
		case mt.Is("application/pdf"):
			info.Kind = PDF
		case isTextual(info.Sniffed) && (info.Extension == ".txt" || info.Extension == ".md"):
			info.Kind = textKind(info)
		default:
			info.Kind = Unsupported
		}
	default:
		info.Kind = Unsupported
	}

	d.describe(info)
	return info
}

func textKind(info *FileTypeInfo) Kind {
	if info.Declared == "text/markdown" || info.Extension == ".md" {
		return Markdown
	}
	return Text
}

func (d *Detector) describe(info *FileTypeInfo) {
	switch info.Kind {
	case PDF:
		info.Description = "PDF document"
	case Text:
		info.Description = "Plain text file"
	case Markdown:
		info.Description = "Markdown document"
	default:
		info.Description = UnsupportedMessage
	}
}

func isTextual(sniffed string) bool {
	return strings.HasPrefix(sniffed, "text/")
}

// BaseType strips parameters from a media type and lower-cases it.
func BaseType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}
