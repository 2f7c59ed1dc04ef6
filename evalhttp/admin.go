package evalhttp

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/httpjson"
	"github.com/programme-lv/streaks/srvcerror"
)

func (httpserver *HttpServer) postEvaluations(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	type triggerRequest struct {
		Date string `json:"date"`
	}
	var request triggerRequest
	if r.ContentLength != 0 {
		if err := httpjson.DecodeBody(r, &request); err != nil {
			httpjson.HandleError(logger, w, err)
			return
		}
	}
	day, err := parseOptionalDay(request.Date)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}

	summary, err := httpserver.trigger.Handle(r.Context(), evalsrvc.TriggerParams{Date: day})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteJson(w, http.StatusAccepted, summary)
}

func (httpserver *HttpServer) getAnalytics(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 365 {
			httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("days must be between 1 and 365"))
			return
		}
		days = n
	}

	analytics, err := httpserver.analytics.Handle(r.Context(), evalsrvc.AnalyticsQuery{Days: days})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, analytics)
}

func (httpserver *HttpServer) getChallengeResults(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	challengeID, err := uuid.Parse(chi.URLParam(r, "challengeId"))
	if err != nil {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("invalid challenge id"))
		return
	}
	day, err := parseOptionalDay(r.URL.Query().Get("date"))
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}

	results, err := httpserver.challengeResults.Handle(r.Context(), evalsrvc.ChallengeResultsQuery{
		ChallengeID: challengeID,
		Date:        day,
	})
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapResults(results))
}

func parseOptionalDay(s string) (domain.Day, error) {
	if s == "" {
		return domain.Day{}, nil
	}
	day, err := domain.ParseDay(s)
	if err != nil {
		return domain.Day{}, evalsrvc.ErrInvalidDate().SetDebug(err)
	}
	return day, nil
}
