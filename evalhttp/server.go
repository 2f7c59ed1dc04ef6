package evalhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
	"github.com/programme-lv/streaks/auth"
	"github.com/programme-lv/streaks/challenge"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/logger"
	"github.com/programme-lv/streaks/problemcache"
	"github.com/programme-lv/streaks/srvccqs"
)

type SessionStorer interface {
	Store(ctx context.Context, userID uuid.UUID, username string, sess lcclient.Session, expiresAt *time.Time) (bool, error)
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type UserGetter interface {
	GetUser(ctx context.Context, id uuid.UUID) (domain.User, error)
}

type Deps struct {
	Eval       *evalsrvc.EvalSrvc
	Challenges *challenge.Service
	Sessions   SessionStorer
	Users      UserGetter
}

type Opts struct {
	JwtKey         []byte
	AllowedOrigins []string
	Env            string
	Version        string
}

type HttpServer struct {
	router *chi.Mux

	trigger          srvccqs.QueryHandler[evalsrvc.TriggerParams, evalsrvc.TriggerSummary]
	analytics        srvccqs.QueryHandler[evalsrvc.AnalyticsQuery, evalsrvc.Analytics]
	challengeResults srvccqs.QueryHandler[evalsrvc.ChallengeResultsQuery, []domain.DailyResult]
	memberResults    srvccqs.QueryHandler[evalsrvc.MemberResultsQuery, []domain.DailyResult]
	problem          srvccqs.QueryHandler[string, problemcache.Lookup]
	join             srvccqs.QueryHandler[joinParams, domain.Membership]
	redeem           srvccqs.QueryHandler[redeemParams, domain.Membership]
	invalidate       srvccqs.CmdHandler[uuid.UUID]

	sessions SessionStorer
	users    UserGetter
}

func NewHttpServer(deps Deps, opts Opts) *HttpServer {
	router := chi.NewRouter()

	httpLogger := httplog.NewLogger("streaks", httplog.Options{
		LogLevel:         slog.LevelDebug,
		JSON:             opts.Env != "dev",
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		Tags: map[string]string{
			"version": opts.Version,
			"env":     opts.Env,
		},
	})
	router.Use(httplog.RequestLogger(httpLogger))
	router.Use(requestLoggerToContext)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           3000,
	}))

	router.Use(auth.GetJwtAuthMiddleware(opts.JwtKey))

	eval := deps.Eval
	server := &HttpServer{
		router:           router,
		trigger:          logged("trigger-daily", eval.TriggerDaily),
		analytics:        logged("get-analytics", eval.GetAnalytics),
		challengeResults: logged("get-challenge-results", eval.GetChallengeResults),
		memberResults:    logged("get-member-results", eval.GetMemberResults),
		problem:          logged("get-problem", eval.GetProblem),
		join: logged("join-challenge", func(ctx context.Context, p joinParams) (domain.Membership, error) {
			return deps.Challenges.Join(ctx, p.UserID, p.ChallengeID)
		}),
		redeem: logged("redeem-invite", func(ctx context.Context, p redeemParams) (domain.Membership, error) {
			return deps.Challenges.RedeemInvite(ctx, p.UserID, p.Code)
		}),
		invalidate: srvccqs.WithCmdLogging[uuid.UUID]("invalidate-session",
			srvccqs.CmdFunc[uuid.UUID](deps.Sessions.Invalidate)),
		sessions: deps.Sessions,
		users:    deps.Users,
	}

	server.routes()

	return server
}

func logged[Q, R any](name string, f func(context.Context, Q) (R, error)) srvccqs.QueryHandler[Q, R] {
	return srvccqs.WithQueryLogging[Q, R](name, srvccqs.QueryFunc[Q, R](f))
}

func (httpserver *HttpServer) routes() {
	r := httpserver.router
	r.Get("/healthz", httpserver.healthz)
	r.Get("/problems/{slug}", httpserver.getProblem)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireScope(auth.ScopeAdmin))
		r.Post("/admin/evaluations", httpserver.postEvaluations)
		r.Get("/admin/analytics", httpserver.getAnalytics)
		r.Get("/admin/challenges/{challengeId}/results", httpserver.getChallengeResults)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/members/{memberId}/results", httpserver.getMemberResults)
		r.Post("/challenges/{challengeId}/join", httpserver.joinChallenge)
		r.Post("/invites/{code}/redeem", httpserver.redeemInvite)
		r.Put("/me/leetcode-session", httpserver.putLeetcodeSession)
		r.Delete("/me/leetcode-session", httpserver.deleteLeetcodeSession)
	})
}

func (httpserver *HttpServer) Handler() http.Handler {
	return httpserver.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (httpserver *HttpServer) Start(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           httpserver.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLoggerToContext exposes the request scoped logger to services.
func requestLoggerToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), httplog.LogEntry(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (httpserver *HttpServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
