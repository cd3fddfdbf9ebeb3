package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/quote"
)

// Message is one user turn.
type Message struct {
	Message   string `json:"message"`
	Model     string `json:"model"`
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
}

// Reply is the upstream answer plus the quote found in it, if any.
type Reply struct {
	ask.Response
	Quote *quote.Quote `json:"quote,omitempty"`
}

// Error carries the assistant's user-facing message next to the cause.
type Error struct {
	Assistant string
	Message   string
	Err       error
}

func (e *Error) Error() string { return e.Assistant + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type Service struct {
	asker ask.Asker
}

func NewService(asker ask.Asker) *Service { return &Service{asker: asker} }

// Send forwards m to the upstream context of a. Validation failures are returned as
// *ask.ValidationError; upstream failures as *Error with the localized message.
func (s *Service) Send(ctx context.Context, a Assistant, m Message) (Reply, error) {
	if strings.TrimSpace(m.Message) == "" {
		return Reply{}, &ask.ValidationError{Message: "message is required"}
	}
	model, err := a.ResolveModel(m.Model)
	if err != nil {
		return Reply{}, &ask.ValidationError{Message: err.Error()}
	}

	resp, err := s.asker.Ask(ctx, ask.Request{
		Message:   m.Message,
		Context:   a.Context,
		Model:     model,
		SessionID: m.SessionID,
		Address:   m.Address,
	})
	if err != nil {
		var valErr *ask.ValidationError
		if errors.As(err, &valErr) {
			return Reply{}, err
		}
		msg := a.ErrorMessage
		if ask.IsRateLimited(err) {
			msg = a.RateLimitMessage
		}
		return Reply{}, &Error{Assistant: a.Name, Message: msg, Err: err}
	}

	reply := Reply{Response: resp}
	if a.DetectsQuotes {
		if q, ok := quote.Detect(resp.Output); ok {
			reply.Quote = q
			if !q.Devis.TotalsConsistent() {
				log.Warn().Str("assistant", a.Name).Str("numero", q.Devis.Numero.String()).Msg("quote totals do not add up")
			}
		}
	}
	return reply, nil
}
