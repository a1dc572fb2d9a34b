package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/credentials"
	"github.com/agrimitra/advisor/internal/prompts"
)

// InactiveMessage is returned when the gateway has no usable API keys.
const InactiveMessage = "I'm sorry, but I cannot connect to my AI brain right now. Please check if the API keys are configured correctly."

// CanceledMessage is returned when the caller's deadline ends the attempt loop.
const CanceledMessage = "I could not get an answer from the knowledge base in time. Please try again."

// ExhaustedMessage formats the fallback reply after every key failed.
func ExhaustedMessage(err error) string {
	return fmt.Sprintf("I am having trouble connecting to the knowledge base. All keys exhausted. Error: %v", err)
}

// Advisor answers chat messages for one domain.
type Advisor struct {
	gw   *Gateway
	tmpl prompts.Template
}

// NewAdvisor pairs a gateway with a domain template.
func NewAdvisor(gw *Gateway, tmpl prompts.Template) *Advisor {
	return &Advisor{gw: gw, tmpl: tmpl}
}

// Domain returns the template's domain.
func (a *Advisor) Domain() string { return a.tmpl.Domain() }

// Gateway returns the underlying gateway.
func (a *Advisor) Gateway() *Gateway { return a.gw }

// Status returns the credential pool snapshot.
func (a *Advisor) Status() credentials.Snapshot { return a.gw.Status() }

// BuildPrompt assembles the full prompt for a message.
func (a *Advisor) BuildPrompt(message string, dctx prompts.DomainContext, history []conversation.Turn) string {
	return prompts.Assemble(a.tmpl.BuildInstruction(dctx), conversation.FromTurns(history), message)
}

// GenerateResponse answers message in the domain context. It never fails:
// inactive, exhausted and canceled outcomes become user-safe replies.
func (a *Advisor) GenerateResponse(ctx context.Context, message string, dctx prompts.DomainContext, history []conversation.Turn) string {
	reply, err := a.gw.Generate(ctx, a.BuildPrompt(message, dctx, history))
	if err == nil {
		return reply
	}

	var exhausted *ExhaustedError
	switch {
	case errors.Is(err, ErrGatewayInactive):
		log.Warn().Str("domain", a.Domain()).Msg("Chat requested while AI is inactive")
		return InactiveMessage
	case errors.As(err, &exhausted):
		return ExhaustedMessage(exhausted.Err)
	default:
		log.Warn().Str("domain", a.Domain()).Err(err).Msg("Chat generation interrupted")
		return CanceledMessage
	}
}
