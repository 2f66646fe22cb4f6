package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
	"github.com/fitcoachapp/backend/pkg"
)

type profilesRepo interface {
	Upsert(ctx context.Context, profile Profile) (*Profile, error)
	Get(ctx context.Context, userID string) (*Profile, error)
	Delete(ctx context.Context, userID string) error
}

type DeleteProfileResponse struct {
	DeletedUserID string `json:"deletedUserId"`
}

type Handler struct {
	repo profilesRepo
}

func NewHandler(repo profilesRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/profiles", handler.HandleUpsert).Methods("POST", "PUT", "OPTIONS").Name("upsert-profile")
	router.HandleFunc("/profiles/{userId}", handler.HandleGet).Methods("GET").Name("get-profile")
	router.HandleFunc("/profiles/{userId}", handler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-profile")
}

func (handler *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.profiles.upsert")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var profile Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		log.Tracef("upsert profile, unmarshal json params: %s", err)
		http.Error(w, "save profile failed", http.StatusBadRequest)
		return
	}

	if profile.UserID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	savedProfile, err := handler.repo.Upsert(ctx, profile)
	if err != nil {
		if errors.Is(err, ErrProfileConflict) {
			http.Error(w, "error, profile id already taken", http.StatusConflict)
			return
		}
		log.Errorf("failed to save profile of user %s: %s", profile.UserID, err)
		http.Error(w, "error, failed to save profile", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, savedProfile)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.profiles.get")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	profile, err := handler.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get profile of user %s: %s", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, profile)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.profiles.delete")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete profile of user %s: %s", userID, err)
		http.Error(w, "profile not deleted", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, DeleteProfileResponse{
		DeletedUserID: userID,
	})
}
