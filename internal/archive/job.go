// Package archive copies generated artifacts and uploaded resumes to object storage
// through a Redis-backed queue and a small worker pool.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/local/assistgate/internal/storage"
)

// Kind names what was archived.
type Kind string

const (
	KindResume      Kind = "resume"
	KindCoverLetter Kind = "cover_letter"
	KindQuote       Kind = "quote"
)

// Job is one queued artifact. Data is base64 in the JSON payload.
type Job struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SessionID   string    `json:"session_id,omitempty"`
	Data        []byte    `json:"data"`
	Sealed      bool      `json:"sealed,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey is <prefix>/<kind>/<yyyy>/<mm>/<id>-<file>.
func ObjectKey(prefix string, kind Kind, id, fileName string, at time.Time) string {
	name := strings.Trim(unsafeKeyChars.ReplaceAllString(path.Base(fileName), "_"), "_")
	if name == "" || name == "." {
		name = "artifact"
	}
	return path.Join(prefix, string(kind), at.UTC().Format("2006"), at.UTC().Format("01"), id+"-"+name)
}

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// Archiver turns artifacts into queued jobs. A nil *Archiver archives nothing.
// With a passphrase the bytes are sealed before they reach the queue.
type Archiver struct {
	q          Enqueuer
	prefix     string
	passphrase string
	now        func() time.Time
}

func NewArchiver(q Enqueuer, prefix, passphrase string) *Archiver {
	return &Archiver{q: q, prefix: prefix, passphrase: passphrase, now: time.Now}
}

// Archive enqueues data and returns the object key it will be stored under.
func (a *Archiver) Archive(ctx context.Context, kind Kind, fileName, contentType, sessionID string, data []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	now := a.now()
	id := uuid.NewString()
	job := Job{
		ID:          id,
		Kind:        kind,
		Key:         ObjectKey(a.prefix, kind, id, fileName, now),
		FileName:    fileName,
		ContentType: contentType,
		SessionID:   sessionID,
		Data:        data,
		CreatedAt:   now.UTC(),
	}
	if a.passphrase != "" {
		sealed, err := storage.Seal(data, a.passphrase)
		if err != nil {
			return "", fmt.Errorf("seal archive job: %w", err)
		}
		job.Data = sealed
		job.Sealed = true
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode archive job: %w", err)
	}
	if err := a.q.Enqueue(ctx, payload); err != nil {
		return "", fmt.Errorf("enqueue archive job: %w", err)
	}
	return job.Key, nil
}
