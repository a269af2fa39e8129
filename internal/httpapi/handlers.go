package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/DoyleJ11/quiz-battle-backend/internal/battle"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/types"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)

	message := apperr.PublicMessage(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: message})
}

func validationError(format string, args ...any) error {
	return apperr.New(apperr.ErrCodeValidation, fmt.Sprintf(format, args...))
}

// decode reads a JSON body into dst, rejecting unknown fields, and runs
// the struct's validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Wrap(err, apperr.ErrCodeValidation, "request body is empty")
		}
		return validationError("invalid JSON body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return validationError("invalid request: %s", strings.Join(fields, ", "))
		}
		return validationError("invalid request: %v", err)
	}
	return nil
}

func CreateRoom(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// every field is optional, so an empty body means defaults
		var req types.CreateRoomRequest
		if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, err)
			return
		}

		res, err := svc.CreateRoom(r.Context(), req.ConfigInput())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func GetRoom(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Room(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func JoinRoom(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.JoinRoomRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.Join(r.Context(), req.RoomCode, req.Name, req.TeamID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// StartQuestion accepts the room code as a JSON body (POST) or as the
// roomCode query parameter (GET).
func StartQuestion(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StartQuestionRequest
		if r.Method == http.MethodGet {
			req.RoomCode = r.URL.Query().Get("roomCode")
			if err := validate.Struct(req); err != nil {
				writeError(w, r, validationError("roomCode query parameter must be a 6 character code"))
				return
			}
		} else if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.StartNext(r.Context(), req.RoomCode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func SubmitAnswer(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SubmitAnswerRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.Submit(r.Context(), battle.SubmitInput{
			RoomID:      req.RoomID,
			PlayerID:    req.PlayerID,
			QuestionID:  req.QuestionID,
			AnswerIndex: *req.AnswerIndex,
			TimeMs:      req.TimeMs,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func TeamAction(svc *battle.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.TeamActionRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.TeamAction(r.Context(), battle.ActionInput{
			RoomID:       req.RoomID,
			PlayerID:     req.PlayerID,
			Kind:         engine.ActionKind(req.Kind),
			TargetTeamID: req.TargetTeamID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func Healthz(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
	}
}
