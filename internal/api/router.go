package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alecgard/okrtracker/internal/access"
	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/metrics"
	"github.com/alecgard/okrtracker/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Accounts  AccountService
	Teams     TeamService
	OKR       OKRService
	Summaries SummaryService
	Activity  ActivityLog
	Recorder  ActivityRecorder

	Tokens      *auth.TokenIssuer
	Identities  auth.IdentityLookup
	Memberships access.MembershipLookup
	Owners      access.OwnerLookup

	LoginLimiter *ratelimit.Limiter
	APILimiter   *ratelimit.Limiter
	Metrics      *metrics.Metrics
	DB           Pinger

	AllowedOrigins []string
	Debug          bool
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger(deps.Metrics))

	rs := responder{debug: deps.Debug}
	a := auditor{recorder: deps.Recorder}
	m := deps.Metrics

	var (
		onAuthFailure  func(string)
		onAuthSuccess  func(string)
		onDeny         func(string)
		onLoginLimited func()
		onAPILimited   func()
	)
	if m != nil {
		onAuthFailure = m.IncAuthFailure
		onAuthSuccess = m.IncAuthSuccess
		onDeny = m.IncAccessDenied
		onLoginLimited = func() { m.IncRateLimitRejection("login") }
		onAPILimited = func() { m.IncRateLimitRejection("api") }
	}

	resolver := access.NewResolver(deps.Memberships, onDeny)
	owners := deps.Owners

	accounts := newAuthHandler(rs, deps.Accounts, onAuthSuccess)
	teams := newTeamsHandler(rs, a, deps.Teams, deps.Activity)
	objectives := newObjectivesHandler(rs, a, deps.OKR, resolver)
	keyResults := newKeyResultsHandler(rs, a, deps.OKR)
	updates := newUpdatesHandler(rs, a, deps.OKR, deps.Summaries, resolver, owners)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rs.fail(w, r, apperr.NotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Message: "Method not allowed"})
	})

	r.Get("/health", healthHandler(deps.DB))
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		r.Get("/metrics/summary", m.Handler())
	}

	var (
		admin   = []auth.Role{auth.RoleAdmin}
		write   = []auth.Role{auth.RoleAdmin, auth.RoleMember}
		members = []auth.Role{auth.RoleAdmin, auth.RoleMember, auth.RoleViewer}
	)
	team := func(roles ...auth.Role) func(http.Handler) http.Handler {
		return resolver.Require(access.TeamParam("teamId"), roles...)
	}
	objective := func(roles ...auth.Role) func(http.Handler) http.Handler {
		return resolver.Require(access.OwnerOf(owners, access.KindObjective, "objectiveId"), roles...)
	}
	keyResult := func(roles ...auth.Role) func(http.Handler) http.Handler {
		return resolver.Require(access.OwnerOf(owners, access.KindKeyResult, "id"), roles...)
	}
	update := func(roles ...auth.Role) func(http.Handler) http.Handler {
		return resolver.Require(access.OwnerOf(owners, access.KindUpdate, "id"), roles...)
	}

	loginLimit := ratelimit.Middleware(deps.LoginLimiter, ratelimit.ByClientIP, onLoginLimited)

	r.Route("/api", func(ar chi.Router) {
		// Public routes, throttled per client address.
		ar.Group(func(pr chi.Router) {
			pr.Use(loginLimit)
			pr.Post("/auth/register", accounts.Register)
			pr.Post("/auth/login", accounts.Login)
			pr.Post("/auth/refresh", accounts.Refresh)
			pr.Post("/teams/invitations/accept", teams.AcceptInvitation)
		})

		// Authenticated routes, throttled per user.
		ar.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(deps.Tokens, deps.Identities, onAuthFailure))
			pr.Use(access.WithScope)
			pr.Use(ratelimit.Middleware(deps.APILimiter, ratelimit.ByPrincipal, onAPILimited))

			pr.Get("/auth/profile", accounts.Profile)
			pr.Patch("/auth/profile", accounts.UpdateProfile)

			pr.Post("/teams", teams.CreateTeam)
			pr.Get("/teams", teams.ListTeams)
			pr.Route("/teams/{teamId}", func(tr chi.Router) {
				tr.Use(validIDs(rs, "teamId"))
				tr.With(team(members...)).Get("/", teams.GetTeam)
				tr.With(team(admin...)).Patch("/", teams.UpdateTeam)
				tr.With(team(admin...)).Delete("/", teams.DeleteTeam)
				tr.With(team(admin...)).Post("/members", teams.AddMember)
				tr.With(validIDs(rs, "userId"), team(admin...)).Patch("/members/{userId}", teams.ChangeMemberRole)
				tr.With(validIDs(rs, "userId"), team(admin...)).Delete("/members/{userId}", teams.RemoveMember)
				tr.With(team(members...)).Get("/activity", teams.ListActivity)
			})

			pr.Post("/objectives", objectives.CreateObjective)
			pr.Get("/objectives", objectives.ListObjectives)
			pr.Route("/objectives/{objectiveId}", func(or chi.Router) {
				or.Use(validIDs(rs, "objectiveId"))
				or.With(objective(members...)).Get("/", objectives.GetObjective)
				or.With(objective(write...)).Patch("/", objectives.UpdateObjective)
				or.With(objective(admin...)).Delete("/", objectives.DeleteObjective)
				or.With(objective(write...)).Post("/keyresults", keyResults.CreateKeyResult)
				or.With(objective(members...)).Get("/keyresults", keyResults.ListKeyResults)
			})

			pr.Route("/keyresults/{id}", func(kr chi.Router) {
				kr.Use(validIDs(rs, "id"))
				kr.With(keyResult(members...)).Get("/", keyResults.GetKeyResult)
				kr.With(keyResult(members...)).Patch("/", keyResults.UpdateKeyResult)
				kr.With(keyResult(admin...)).Delete("/", keyResults.DeleteKeyResult)
			})

			pr.Post("/updates", updates.CreateUpdate)
			pr.Route("/updates/objectives/{objectiveId}", func(ur chi.Router) {
				ur.Use(validIDs(rs, "objectiveId"), objective(members...))
				ur.Get("/", updates.ListUpdates)
				ur.Get("/summary", updates.Summary)
			})
			pr.Route("/updates/{id}", func(ur chi.Router) {
				ur.Use(validIDs(rs, "id"))
				ur.With(update(members...)).Get("/", updates.GetUpdate)
				ur.With(update(write...)).Patch("/", updates.EditUpdate)
				ur.With(update(admin...)).Delete("/", updates.DeleteUpdate)
			})
		})
	})

	return r
}

// healthHandler reports ok when the database answers a ping.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
