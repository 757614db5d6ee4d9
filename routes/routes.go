package routes

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"cityzen/handler"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/middleware"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Complaints *handler.ComplaintHandler
	Authority  *handler.AuthorityHandler
	Moderation *handler.ModerationHandler
}

// Options carries the cross-cutting pieces of the router.
type Options struct {
	Auth *middleware.Authenticator
	Log  logx.Logger
	// Ping reports whether the database is reachable; nil skips the check.
	Ping func(ctx context.Context) error
}

// SetupRoutes configures all API routes. CORS wraps the returned router in main so
// preflight requests are answered before route matching.
func SetupRoutes(h Handlers, opts Options) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Recover(opts.Log), middleware.AccessLog(opts.Log), metrics.Instrument)

	auth := opts.Auth
	citizen := func(f http.HandlerFunc) http.Handler { return auth.RequireCitizen(f) }
	authority := func(f http.HandlerFunc) http.Handler { return auth.RequireAuthority(f) }
	admin := func(f http.HandlerFunc) http.Handler { return auth.RequireAdmin(f) }
	anyone := func(f http.HandlerFunc) http.Handler { return auth.RequireAny(f) }

	// API v1 routes
	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	complaints := apiV1.PathPrefix("/complaints").Subrouter()

	// Fixed paths first so they never reach the {id} routes.
	complaints.Handle("/check-duplicate", citizen(h.Complaints.CheckDuplicate)).Methods("POST")
	complaints.Handle("/recommend-authorities", anyone(h.Authority.Recommend)).Methods("GET")
	complaints.Handle("/reports", admin(h.Moderation.ListReports)).Methods("GET")
	complaints.Handle("/reports/{id:[0-9]+}", admin(h.Moderation.ResolveReport)).Methods("PATCH")
	complaints.Handle("/appeals/{id:[0-9]+}", admin(h.Moderation.AdjudicateAppeal)).Methods("PATCH")

	complaints.Handle("", citizen(h.Complaints.CreateComplaint)).Methods("POST")
	complaints.Handle("", anyone(h.Complaints.ListComplaints)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}", anyone(h.Complaints.GetComplaint)).Methods("GET")
	complaints.Handle("/{id:[0-9]+}", admin(h.Moderation.DeleteComplaint)).Methods("DELETE")
	complaints.Handle("/{id:[0-9]+}/timeline", anyone(h.Complaints.GetStatusTimeline)).Methods("GET")
	// Authorities move the workflow; the owning citizen uses the same route to confirm completion.
	complaints.Handle("/{id:[0-9]+}/status", anyone(h.Complaints.UpdateStatus)).Methods("PATCH")
	complaints.Handle("/{id:[0-9]+}/appeal", citizen(h.Complaints.Appeal)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/upvote", citizen(h.Complaints.Upvote)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/bump", citizen(h.Complaints.Bump)).Methods("POST")
	complaints.Handle("/{id:[0-9]+}/report", citizen(h.Moderation.Report)).Methods("POST")

	// Authority work queue
	apiV1.Handle("/authority/complaints", authority(h.Authority.GetMyComplaints)).Methods("GET")

	moderation := apiV1.PathPrefix("/moderation").Subrouter()
	moderation.Handle("/strike", admin(h.Moderation.Strike)).Methods("POST")
	moderation.Handle("/ban", admin(h.Moderation.Ban)).Methods("POST")
	moderation.Handle("/unban", admin(h.Moderation.Unban)).Methods("POST")
	moderation.Handle("/user/{citizenUid}", admin(h.Moderation.GetUserModeration)).Methods("GET")
	moderation.Handle("/banned-users", admin(h.Moderation.ListBanned)).Methods("GET")
	moderation.Handle("/my-strikes", citizen(h.Moderation.MyStrikes)).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ping != nil {
			if err := opts.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	return router
}
