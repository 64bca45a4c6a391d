package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"opendays/models"
	"opendays/utils"
)

type SubmissionStatus int

const (
	SubmissionAccepted SubmissionStatus = iota
	SubmissionRateLimited
	SubmissionInvalid
	SubmissionFailed
)

const (
	rateLimitedMessage = "Too many submissions, please try again later"
	genericFailure     = "We encountered an error processing your submission. Please try again later or contact support."
)

// SubmissionResult is the outcome of one contact form post. Message is safe
// to show to the client.
type SubmissionResult struct {
	Status  SubmissionStatus
	Errors  []string
	Message string
}

func (r SubmissionResult) HTTPStatus() int {
	switch r.Status {
	case SubmissionAccepted:
		return http.StatusOK
	case SubmissionRateLimited:
		return http.StatusTooManyRequests
	case SubmissionInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// SubmissionPipeline runs rate limit, validation and persistence for the
// contact form, in that order.
type SubmissionPipeline struct {
	Limiter utils.RateLimiter
	Policy  utils.Policy
	Store   utils.ContactStore
	Logger  *slog.Logger
	Now     func() time.Time
}

func (p *SubmissionPipeline) Submit(ctx context.Context, client string, form models.ContactSubmission) SubmissionResult {
	limited, err := p.Limiter.Limited(ctx, client, p.Policy)
	if err != nil {
		// fail open, a broken limiter backend must not take the form down
		p.Logger.WarnContext(ctx, "rate limiter unavailable", "policy", p.Policy.Name, "error", err)
	}
	if limited {
		p.Logger.WarnContext(ctx, "rate limit exceeded", "policy", p.Policy.Name, "ip", client)
		return SubmissionResult{Status: SubmissionRateLimited, Message: rateLimitedMessage}
	}

	submission := models.ContactSubmission{
		Name:      strings.TrimSpace(form.Name),
		StudentID: strings.TrimSpace(form.StudentID),
		Email:     strings.TrimSpace(form.Email),
		Subject:   strings.TrimSpace(form.Subject),
		Details:   strings.TrimSpace(form.Details),
	}

	if errs := utils.ValidateContact(submission); len(errs) > 0 {
		msg := utils.ValidationMessage(errs)
		p.Logger.WarnContext(ctx, "contact submission rejected", "ip", client, "errors", msg)
		return SubmissionResult{Status: SubmissionInvalid, Errors: errs, Message: msg}
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	submission.SubmissionDate = now().UTC()
	submission.IPAddress = client

	if err := p.Store.Save(ctx, submission); err != nil {
		p.Logger.ErrorContext(ctx, "contact submission failed", "ip", client, "error", err)
		return SubmissionResult{Status: SubmissionFailed, Message: genericFailure}
	}

	p.Logger.InfoContext(ctx, "contact submission stored", "ip", client)
	return SubmissionResult{Status: SubmissionAccepted}
}
