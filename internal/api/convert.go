package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"unicode/utf8"

	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/filetype"
	"github.com/local/assistgate/internal/resume"
)

const (
	convertOKMessage       = "PDF processed and converted to markdown successfully"
	convertFallbackMessage = "PDF received but could not be fully processed"
)

type convertResp struct {
	Text    string `json:"text"`
	Message string `json:"message"`
	Pages   int    `json:"pages,omitempty"`
}

type resumeResp struct {
	Text    string        `json:"text"`
	Kind    filetype.Kind `json:"kind"`
	Message string        `json:"message"`
	Pages   int           `json:"pages,omitempty"`
}

// readUpload returns the "file" part of a bounded multipart body.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*multipart.FileHeader, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, err
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	if fh.Size > s.deps.MaxUploadBytes {
		return nil, nil, &http.MaxBytesError{Limit: s.deps.MaxUploadBytes}
	}
	data, err := io.ReadAll(io.LimitReader(file, s.deps.MaxUploadBytes+1))
	if err != nil {
		return nil, nil, err
	}
	return fh, data, nil
}

func (s *Server) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var sizeErr *http.MaxBytesError
	switch {
	case errors.As(err, &sizeErr):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large", nil)
	case errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "No file provided", nil)
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, multipart.ErrMessageTooLarge):
		writeError(w, http.StatusBadRequest, "No file provided", err)
	default:
		reqLogger(r).Error().Err(err).Msg("upload read failed")
		writeError(w, http.StatusInternalServerError, "Failed to process PDF file", err)
	}
}

func (s *Server) archiveAsync(ctx context.Context, r *http.Request, kind archive.Kind, fileName, contentType, sessionID string, data []byte) {
	if s.deps.Archiver == nil {
		return
	}
	key, err := s.deps.Archiver.Archive(ctx, kind, fileName, contentType, sessionID, data)
	if err != nil {
		reqLogger(r).Warn().Err(err).Str("kind", string(kind)).Msg("archive enqueue failed")
		return
	}
	reqLogger(r).Debug().Str("key", key).Msg("artifact queued for archive")
}

func (s *Server) handleConvertPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	fh, data, err := s.readUpload(w, r)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}
	if baseContentType(fh) != "application/pdf" {
		writeError(w, http.StatusBadRequest, "Unsupported file type. Only PDF files are supported.", nil)
		return
	}

	conv := resume.Convert(r.Context(), s.deps.Extractor, data, fh.Filename)
	s.archiveAsync(r.Context(), r, archive.KindResume, fh.Filename, "application/pdf", r.FormValue("sessionId"), data)
	msg := convertOKMessage
	if conv.Fallback {
		msg = convertFallbackMessage
	}
	writeJSON(w, http.StatusOK, convertResp{Text: conv.Markdown, Message: msg, Pages: conv.Pages})
}

// handleResume accepts PDF, TXT or MD. Text files are returned as-is, PDFs converted.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	fh, data, err := s.readUpload(w, r)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}
	info := s.deps.Detector.Detect(data, fh.Filename, fh.Header.Get("Content-Type"))
	sessionID := r.FormValue("sessionId")

	switch info.Kind {
	case filetype.Text, filetype.Markdown:
		if !utf8.Valid(data) {
			writeError(w, http.StatusBadRequest, "File is not valid UTF-8 text", nil)
			return
		}
		s.archiveAsync(r.Context(), r, archive.KindResume, fh.Filename, info.Sniffed, sessionID, data)
		writeJSON(w, http.StatusOK, resumeResp{Text: string(data), Kind: info.Kind, Message: info.Description + " loaded"})
	case filetype.PDF:
		conv := resume.Convert(r.Context(), s.deps.Extractor, data, fh.Filename)
		if errors.Is(conv.Err, resume.ErrInvalidPDF) {
			writeError(w, http.StatusBadRequest, "Could not process PDF file. Please try uploading a text-based resume.", conv.Err)
			return
		}
		s.archiveAsync(r.Context(), r, archive.KindResume, fh.Filename, "application/pdf", sessionID, data)
		msg := convertOKMessage
		if conv.Fallback {
			msg = convertFallbackMessage
		}
		writeJSON(w, http.StatusOK, resumeResp{Text: conv.Markdown, Kind: info.Kind, Message: msg, Pages: conv.Pages})
	default:
		writeError(w, http.StatusBadRequest, filetype.UnsupportedMessage, nil)
	}
}

func baseContentType(fh *multipart.FileHeader) string {
	return filetype.BaseType(fh.Header.Get("Content-Type"))
}
