package evalhttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/httpjson"
	"github.com/programme-lv/streaks/lcclient"
	"github.com/programme-lv/streaks/srvcerror"
)

func (httpserver *HttpServer) putLeetcodeSession(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	type sessionRequest struct {
		Cookie    string     `json:"cookie"`
		CsrfToken string     `json:"csrfToken"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	var request sessionRequest
	if err := httpjson.DecodeBody(r, &request); err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	if request.Cookie == "" {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("cookie is required"))
		return
	}
	if request.ExpiresAt != nil && !request.ExpiresAt.After(time.Now()) {
		httpjson.HandleError(logger, w, srvcerror.ErrInvalidRequest("expiresAt must be in the future"))
		return
	}

	userID, err := requesterID(r)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	user, err := httpserver.users.GetUser(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		httpjson.HandleError(logger, w, srvcerror.ErrUnauthorized().SetDebug(err))
		return
	}
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	username := ""
	if user.HasIdentity() {
		username = *user.LeetcodeUsername
	}

	validated, err := httpserver.sessions.Store(r.Context(), userID, username,
		lcclient.Session{Cookie: request.Cookie, CsrfToken: request.CsrfToken}, request.ExpiresAt)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}

	type sessionResponse struct {
		Stored    bool `json:"stored"`
		Validated bool `json:"validated"`
	}
	httpjson.WriteSuccessJson(w, sessionResponse{Stored: true, Validated: validated})
}

func (httpserver *HttpServer) deleteLeetcodeSession(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	userID, err := requesterID(r)
	if err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	if err := httpserver.invalidate.Handle(r.Context(), userID); err != nil {
		httpjson.HandleError(logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
