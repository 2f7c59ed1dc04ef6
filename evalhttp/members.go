package evalhttp

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
	"github.com/programme-lv/streaks/auth"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/httpjson"
	"github.com/programme-lv/streaks/srvcerror"
)

type joinParams struct {
	UserID      uuid.UUID
	ChallengeID uuid.UUID
}

type redeemParams struct {
	UserID uuid.UUID
	Code   string
}

func requesterID(r *http.Request) (uuid.UUID, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, srvcerror.ErrUnauthorized()
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, srvcerror.ErrUnauthorized().SetDebug(err)
	}
	return id, nil
}

func (httpserver *HttpServer) getMemberResults(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	memberID, err := uuid.Parse(chi.URLParam(r, "memberId"))
	if err != nil {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("invalid member id"))
		return
	}
	userID, err := requesterID(r)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("limit must be a positive integer"))
			return
		}
	}

	results, err := httpserver.memberResults.Handle(r.Context(), evalsrvc.MemberResultsQuery{
		MemberID:    memberID,
		RequesterID: userID,
		IsAdmin:     auth.ClaimsFromContext(r.Context()).HasScope(auth.ScopeAdmin),
		Limit:       limit,
	})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapResults(results))
}

func (httpserver *HttpServer) joinChallenge(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	challengeID, err := uuid.Parse(chi.URLParam(r, "challengeId"))
	if err != nil {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("invalid challenge id"))
		return
	}
	userID, err := requesterID(r)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}

	m, err := httpserver.join.Handle(r.Context(), joinParams{UserID: userID, ChallengeID: challengeID})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteJson(w, http.StatusCreated, mapMembership(m))
}

func (httpserver *HttpServer) redeemInvite(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	userID, err := requesterID(r)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}

	m, err := httpserver.redeem.Handle(r.Context(), redeemParams{UserID: userID, Code: chi.URLParam(r, "code")})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteJson(w, http.StatusCreated, mapMembership(m))
}

func (httpserver *HttpServer) getProblem(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	slug := chi.URLParam(r, "slug")
	if slug == "" {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("missing problem slug"))
		return
	}
	l, err := httpserver.problem.Handle(r.Context(), slug)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapProblem(l))
}
