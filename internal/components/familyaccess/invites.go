package familyaccess

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// tokenBytes is the invite token entropy: 256 bits.
const tokenBytes = 32

// InviteOptions configures an InviteWorkflow.
type InviteOptions struct {
	// MaxTTLHours caps the lifetime an owner may request. Zero means 168.
	MaxTTLHours int
	// Provider is embedded in QR invite strings.
	Provider string
	// AllowSensitive logs full tokens instead of a prefix.
	AllowSensitive bool
}

// InviteWorkflow issues invite tokens and redeems them into access requests.
type InviteWorkflow struct {
	ledger   Ledger
	requests *RequestWorkflow
	opts     InviteOptions
	now      Clock
	rec      Recorder
	log      *slog.Logger
}

// NewInviteWorkflow creates an invite workflow. Successful redemptions file
// requests through requests.
func NewInviteWorkflow(ledger Ledger, requests *RequestWorkflow, opts InviteOptions, now Clock, rec Recorder, log *slog.Logger) *InviteWorkflow {
	if now == nil {
		now = time.Now
	}
	if opts.MaxTTLHours <= 0 {
		opts.MaxTTLHours = 168
	}
	return &InviteWorkflow{
		ledger:   ledger,
		requests: requests,
		opts:     opts,
		now:      now,
		rec:      recorderOrNoop(rec),
		log:      logutil.NoopIfNil(log),
	}
}

// Issue returns ownerID's current unexpired, unused token if one exists and
// otherwise mints a new one valid for ttlHours. A reused token keeps its
// original expiry.
func (w *InviteWorkflow) Issue(ctx context.Context, ownerID string, ttlHours int) (tok *InviteToken, err error) {
	ctx, span := startSpan(ctx, "issue", attribute.String("owner_id", ownerID), attribute.Int("ttl_hours", ttlHours))
	defer func() { finish(span, w.rec, "issue", err) }()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	if ttlHours < 1 || ttlHours > w.opts.MaxTTLHours {
		return nil, fmt.Errorf("%w: ttl_hours must be between 1 and %d", ErrInvalidArgument, w.opts.MaxTTLHours)
	}

	now := w.now()
	existing, err := w.ledger.FindReusableInvite(ctx, ownerID, now)
	if err == nil {
		span.SetAttributes(attribute.Bool("reused", true))
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find reusable invite: %w", err)
	}

	value, err := newToken()
	if err != nil {
		return nil, err
	}
	tok = &InviteToken{
		Token:     value,
		OwnerID:   ownerID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttlHours) * time.Hour),
	}
	if err := w.ledger.CreateInvite(ctx, tok); err != nil {
		return nil, fmt.Errorf("store invite: %w", err)
	}

	w.log.Info("family invite issued", "owner_id", ownerID,
		"token", logutil.RedactToken(value, w.opts.AllowSensitive), "expires_at", tok.ExpiresAt)
	return tok, nil
}

// Redeem consumes an invite on behalf of requesterID and files a pending
// request to the token's owner. raw may be a bare token or an invite string.
//
// The mark-used write commits on its own before the request is filed, so of
// two concurrent redeemers only one wins; the other re-reads the token and
// gets OutcomeAlreadyRedeemed (same requester) or ErrTokenConsumed.
func (w *InviteWorkflow) Redeem(ctx context.Context, raw, requesterID string) (out *RedemptionOutcome, err error) {
	ctx, span := startSpan(ctx, "redeem", attribute.String("requester_id", requesterID))
	defer func() {
		if out != nil {
			span.SetAttributes(attribute.String("outcome", string(out.Kind)))
			w.rec.Redemption(out.Kind)
		}
		finish(span, w.rec, "redeem", err)
	}()

	if strings.TrimSpace(raw) == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: invite token and requester are required", ErrInvalidArgument)
	}

	tok, err := w.lookup(ctx, strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	now := w.now()
	if tok.IsExpired(now) {
		return nil, ErrExpired
	}
	if tok.OwnerID == requesterID {
		return nil, ErrSelfReference
	}
	if tok.IsUsed {
		return usedOutcome(tok, requesterID)
	}

	won, err := w.ledger.MarkInviteUsed(ctx, tok.Token, requesterID, now)
	if err != nil {
		return nil, fmt.Errorf("mark invite used: %w", err)
	}
	if !won {
		tok, err = w.ledger.GetInvite(ctx, tok.Token)
		if err != nil {
			return nil, err
		}
		return usedOutcome(tok, requesterID)
	}
	tok.IsUsed = true
	tok.UsedByID = &requesterID
	tok.UsedAt = &now

	req, err := w.requests.Send(ctx, requesterID, tok.OwnerID)
	switch {
	case errors.Is(err, ErrDuplicatePending), errors.Is(err, ErrDuplicateGrant):
		// Token stays consumed; the relationship it would create already exists.
		w.log.Info("family invite redeemed into existing relationship",
			"owner_id", tok.OwnerID, "requester_id", requesterID, "cause", err.Error())
		return &RedemptionOutcome{Kind: OutcomeAlreadyRedeemed, Token: tok}, nil
	case err != nil:
		return nil, err
	}

	w.log.Info("family invite redeemed", "owner_id", tok.OwnerID, "requester_id", requesterID,
		"request_id", req.ID, "token", logutil.RedactToken(tok.Token, w.opts.AllowSensitive))
	return &RedemptionOutcome{Kind: OutcomeCreated, Request: req, Token: tok}, nil
}

// lookup resolves raw as a bare token first, then as an invite string.
func (w *InviteWorkflow) lookup(ctx context.Context, raw string) (*InviteToken, error) {
	tok, err := w.ledger.GetInvite(ctx, raw)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return tok, err
	}
	token, provider, perr := ParseInviteString(raw)
	if perr != nil {
		return nil, ErrNotFound
	}
	if w.opts.Provider != "" && !strings.EqualFold(provider, w.opts.Provider) {
		return nil, ErrNotFound
	}
	return w.ledger.GetInvite(ctx, token)
}

func usedOutcome(tok *InviteToken, requesterID string) (*RedemptionOutcome, error) {
	if tok.UsedBy() == requesterID {
		return &RedemptionOutcome{Kind: OutcomeAlreadyRedeemed, Token: tok}, nil
	}
	return nil, ErrTokenConsumed
}

// InviteString packs tok for QR display with the configured provider.
func (w *InviteWorkflow) InviteString(tok *InviteToken) string {
	return BuildInviteString(tok.Token, w.opts.Provider)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// BuildInviteString encodes base64url("<token>@<provider>").
func BuildInviteString(token, provider string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(token + "@" + provider))
}

// ParseInviteString decodes an invite string into token and provider.
// The provider must not carry a scheme.
func ParseInviteString(s string) (token, provider string, err error) {
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", "", errors.New("invalid base64 encoding")
	}

	inner := string(decoded)
	at := strings.LastIndex(inner, "@")
	if at == -1 {
		return "", "", errors.New("invalid invite format: missing @")
	}
	token, provider = inner[:at], inner[at+1:]

	if token == "" {
		return "", "", errors.New("invalid invite format: empty token")
	}
	if provider == "" {
		return "", "", errors.New("invalid invite format: empty provider")
	}
	if strings.Contains(provider, "://") {
		return "", "", errors.New("invalid invite format: provider contains scheme")
	}
	return token, provider, nil
}
