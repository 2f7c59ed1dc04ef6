package httpjson

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/programme-lv/streaks/srvcerror"
)

type JsonResponse struct {
	Status  string `json:"status"` // "success" or "error"
	Data    any    `json:"data,omitempty"`
	ErrCode string `json:"code,omitempty"`
	ErrMsg  string `json:"message,omitempty"`
}

func WriteSuccessJson(w http.ResponseWriter, data any) {
	WriteJson(w, http.StatusOK, data)
}

func WriteJson(w http.ResponseWriter, statusCode int, data any) {
	resp := JsonResponse{
		Status: "success",
		Data:   data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func WriteErrorJson(w http.ResponseWriter, errMsg string, statusCode int, errCode string) {
	resp := JsonResponse{
		Status:  "error",
		ErrMsg:  errMsg,
		ErrCode: errCode,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func writeInternalErrorJson(w http.ResponseWriter) {
	WriteErrorJson(w,
		http.StatusText(http.StatusInternalServerError),
		http.StatusInternalServerError,
		srvcerror.ErrCodeInternalServerError)
}

func HandleError(logger *slog.Logger, w http.ResponseWriter, err error) {
	srvcErr := &srvcerror.Error{}
	if !errors.As(err, &srvcErr) {
		logger.Error("internal server error", "error", err)
		writeInternalErrorJson(w)
		return
	}
	if srvcErr.HttpStatusCode() >= http.StatusInternalServerError {
		logger.Error("internal server error", "error", err, "debug", srvcErr.DebugInfo())
	} else if srvcErr.DebugInfo() != nil {
		logger.Warn("service error", "error", err, "debug", srvcErr.DebugInfo())
	} else {
		logger.Info("service error", "error", err)
	}
	WriteErrorJson(w, srvcErr.Error(), srvcErr.HttpStatusCode(), srvcErr.ErrorCode())
}

// DecodeBody decodes a JSON request body, rejecting unknown fields.
func DecodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return srvcerror.ErrInvalidRequest("malformed JSON body").SetDebug(err)
	}
	return nil
}
