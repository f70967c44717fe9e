// Package email drafts rate-increase emails, falling back to a fixed
// template whenever the text generator is missing or fails.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

var ErrNotConfigured = errors.New("AI service not configured")

const systemPrompt = "You are a professional freelance consultant helping write polite, concise rate adjustment emails."

// Completer turns a chat transcript into generated text.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Request struct {
	FairRate       string
	CurrentRate    string
	Skill          string
	ClientLocation string
}

type Draft struct {
	Email    string
	Fallback bool
}

type Generator struct {
	completer Completer
	timeout   time.Duration
	logger    logr.Logger
}

// NewGenerator accepts a nil completer; every draft is then a fallback.
func NewGenerator(completer Completer, timeout time.Duration, logger logr.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{completer: completer, timeout: timeout, logger: logger}
}

func (g *Generator) Configured() bool {
	return g != nil && g.completer != nil
}

// Draft always returns usable text. The error is ErrNotConfigured or the
// generator failure that forced the fallback.
func (g *Generator) Draft(ctx context.Context, req Request) (Draft, error) {
	if !g.Configured() {
		return Draft{Email: Fallback(req), Fallback: true}, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	text, err := g.completer.Complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: Prompt(req)},
	})
	if err != nil {
		g.logger.Error(err, "email generation failed, using fallback")
		return Draft{Email: Fallback(req), Fallback: true}, err
	}
	return Draft{Email: text}, nil
}

func Prompt(req Request) string {
	return fmt.Sprintf("Write a professional email to a client in %s explaining a rate increase from $%s to $%s for %s services. Mention purchasing power parity and inflation. Keep it under 150 words.",
		req.ClientLocation, req.CurrentRate, req.FairRate, req.Skill)
}

func Fallback(req Request) string {
	return fmt.Sprintf("Subject: Rate Update for %s Services\n\n"+
		"Dear Client,\n\n"+
		"I hope this message finds you well. After careful consideration of current market rates and cost of living adjustments, I'm updating my rate for %s services to $%s/hour.\n\n"+
		"This adjustment reflects the current economic environment while ensuring I can continue delivering the high-quality work you expect.\n\n"+
		"I appreciate your understanding and look forward to continuing our partnership.\n\n"+
		"Best regards", req.Skill, req.Skill, req.FairRate)
}
