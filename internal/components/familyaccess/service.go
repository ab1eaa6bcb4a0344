package familyaccess

import (
	"log/slog"
	"time"
)

// Options configures a Service.
type Options struct {
	Invites InviteOptions
	Queries QueryOptions
	Clock   Clock
	Metrics Recorder
	Logger  *slog.Logger
}

// Service bundles the workflows over one ledger. It is built once per
// process and shared by all request handlers.
type Service struct {
	Requests *RequestWorkflow
	Invites  *InviteWorkflow
	Grants   *GrantRegistry
	Queries  *AccessQueryFacade
}

// New wires the workflows over ledger.
func New(ledger Ledger, resolver IdentityResolver, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log != nil {
		log = log.With("component", "familyaccess")
	}

	requests := NewRequestWorkflow(ledger, now, opts.Metrics, log)
	return &Service{
		Requests: requests,
		Invites:  NewInviteWorkflow(ledger, requests, opts.Invites, now, opts.Metrics, log),
		Grants:   NewGrantRegistry(ledger, now, opts.Metrics, log),
		Queries:  NewAccessQueryFacade(ledger, resolver, opts.Queries, log),
	}
}
