package coordinator

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/anhlinh-II/thukhoa-ta-sub000/internal/domain"
)

// Routes builds the REST surface the battle client consumes, plus the
// websocket bridge.
func Routes(service *Service, bridge *WSBridge) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/battle", createBattle(service))
	r.Get("/battle/{battleID}", getBattle(service))
	r.Get("/battle/{battleID}/participants", getParticipants(service))
	r.Post("/battle/{battleID}/join", joinBattle(service))
	r.Post("/battle/{battleID}/disband", disbandBattle(service))
	r.Delete("/battle/{battleID}/participants/{userID}", removeParticipant(service))
	r.Get("/quiz/{quizID}/preview", getQuizPreview(service))
	if bridge != nil {
		r.Get("/ws", bridge.ServeWS)
	}
	return r
}

type createBattleRequest struct {
	QuizID      int64  `json:"quizId"`
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	BattleMode  string `json:"battleMode"`
}

type joinBattleRequest struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func createBattle(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID <= 0 || req.UserID <= 0 {
			http.Error(w, "invalid create payload", http.StatusBadRequest)
			return
		}
		session, err := service.CreateBattle(r.Context(), req.QuizID, req.UserID, req.DisplayName, req.BattleMode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

func getBattle(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleID, ok := pathID(w, r, "battleID")
		if !ok {
			return
		}
		session, err := service.GetBattle(battleID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func getParticipants(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleID, ok := pathID(w, r, "battleID")
		if !ok {
			return
		}
		participants, err := service.Participants(battleID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, participants)
	}
}

func joinBattle(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleID, ok := pathID(w, r, "battleID")
		if !ok {
			return
		}
		var req joinBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
			http.Error(w, "invalid join payload", http.StatusBadRequest)
			return
		}
		session, err := service.Join(r.Context(), battleID, req.UserID, req.DisplayName, req.AvatarURL)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func disbandBattle(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleID, ok := pathID(w, r, "battleID")
		if !ok {
			return
		}
		var signal domain.UserSignal
		if err := json.NewDecoder(r.Body).Decode(&signal); err != nil || signal.UserID <= 0 {
			http.Error(w, "invalid disband payload", http.StatusBadRequest)
			return
		}
		if err := service.Disband(r.Context(), battleID, signal.UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeParticipant(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		battleID, ok := pathID(w, r, "battleID")
		if !ok {
			return
		}
		userID, ok := pathID(w, r, "userID")
		if !ok {
			return
		}
		if err := service.RemoveParticipant(r.Context(), battleID, userID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getQuizPreview(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID, ok := pathID(w, r, "quizID")
		if !ok {
			return
		}
		preview, err := service.GetQuizPreview(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBattleNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNotLeader):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrBattleNotWaiting):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
