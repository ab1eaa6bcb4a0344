// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	familyapi "github.com/chikitsa-cloud/chikitsa-go/internal/components/api/familyaccess"
	profileapi "github.com/chikitsa-cloud/chikitsa-go/internal/components/api/profile"
	recordsapi "github.com/chikitsa-cloud/chikitsa-go/internal/components/api/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service"
	svccfg "github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service/cfg"
	"github.com/chikitsa-cloud/chikitsa-go/internal/interceptors"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"

	// Register the ratelimit interceptor.
	_ "github.com/chikitsa-cloud/chikitsa-go/internal/interceptors/ratelimit"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// Ratelimit holds rate limiting configuration for this service.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig selects the profile guarding invite redemption.
type RatelimitConfig struct {
	// Profile names [http.interceptors.ratelimit.profiles.<name>].
	// Empty disables the limiter.
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates the API service from shared deps.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.FamilyAccess == nil || d.Records == nil || d.Config == nil {
		return nil, errors.New("api: family access, records and config deps are required")
	}

	redeemLimit, err := interceptors.Build(d.Config.HTTP.Interceptors, "ratelimit", c.Ratelimit.Profile, log)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	family := familyapi.NewHandler(d.FamilyAccess, d.Config.Invites.DefaultTTLHours, log)
	recs := recordsapi.NewHandler(d.Records, log)

	var pinger api.Pinger
	if d.Store != nil {
		pinger = d.Store
	}

	r := chi.NewRouter()

	// Health endpoint (public)
	r.Get("/healthz", api.HealthHandler(pinger))

	r.Route("/family-access", func(r chi.Router) {
		r.Post("/requests", family.HandleSend)
		r.Get("/requests/pending", family.HandlePending)
		r.Post("/requests/{requestId}/respond", family.HandleRespond)

		r.Get("/grants", family.HandleGrants)
		r.Delete("/grants/{viewerId}", family.HandleRevoke)
		r.Get("/shared-with-me", family.HandleSharedWithMe)
		r.Get("/can-view/{ownerId}", family.HandleCanView)

		r.Post("/invites", family.HandleIssue)
		r.With(redeemLimit).Post("/invites/redeem", family.HandleRedeem)
	})

	if d.Directory != nil {
		var inv profileapi.Invalidator
		if d.Resolver != nil {
			inv = d.Resolver
		}
		prof := profileapi.NewHandler(d.Directory, inv, log)
		r.Get("/profile", prof.HandleGet)
		r.Put("/profile", prof.HandlePut)
	}

	r.Route("/records", func(r chi.Router) {
		r.Get("/", recs.HandleList)
		r.Post("/", recs.HandleCreate)
		r.Get("/{recordId}", recs.HandleGet)
		r.Delete("/{recordId}", recs.HandleDelete)
	})

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the mount prefix.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that bypass the auth gate.
func (s *Service) Unprotected() []string {
	return []string{"/healthz"}
}

// Close releases resources. The store is owned by main.
func (s *Service) Close() error {
	return nil
}
