package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	gcalendar "google.golang.org/api/calendar/v3"

	"github.com/fitcoachapp/backend/internal/plans"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
	"github.com/fitcoachapp/backend/pkg"
)

const (
	accessTokenHeader  = "X-CALENDAR-ACCESS-TOKEN"
	refreshTokenHeader = "X-CALENDAR-REFRESH-TOKEN"

	defaultWorkoutHour = 18
)

type calendarAdapter interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Credentials, error)
	Refresh(ctx context.Context, creds *Credentials) error
	CreateEvent(ctx context.Context, creds *Credentials, event *gcalendar.Event) (string, error)
	UpdateEvent(ctx context.Context, creds *Credentials, eventID string, event *gcalendar.Event) error
	DeleteEvent(ctx context.Context, creds *Credentials, eventID string) error
	ListEvents(ctx context.Context, creds *Credentials, maxResults int64) ([]*gcalendar.Event, error)
}

type sessionStore interface {
	Store(ctx context.Context, creds Credentials) (string, error)
	Claim(ctx context.Context, sessionRef string) (*Credentials, error)
}

type Handler struct {
	adapter            calendarAdapter
	tokenStore         sessionStore
	frontendURL        string
	timezone           string
	randStateGenerator func() string
	// states issued by HandleAuth, awaiting the provider callback; handlers
	// run on separate goroutines, the map needs the mutex
	pendingStatesMutex sync.Mutex
	pendingStates      map[string]struct{}
}

func NewHandler(
	adapter calendarAdapter,
	tokenStore sessionStore,
	frontendURL string,
	timezone string,
	randStateGenerator func() string,
) *Handler {
	return &Handler{
		adapter:            adapter,
		tokenStore:         tokenStore,
		frontendURL:        frontendURL,
		timezone:           timezone,
		randStateGenerator: randStateGenerator,
		pendingStates:      make(map[string]struct{}),
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/calendar/auth", handler.HandleAuth).Methods("GET").Name("calendar-auth")
	router.HandleFunc("/calendar/callback", handler.HandleCallback).Methods("GET").Name("calendar-callback")
	router.HandleFunc("/calendar/tokens", handler.HandleClaimTokens).Methods("GET").Name("calendar-tokens")
	router.HandleFunc("/calendar/refresh", handler.HandleRefresh).Methods("POST", "OPTIONS").Name("calendar-refresh")
	router.HandleFunc("/calendar/events", handler.HandleCreateEvent).Methods("POST", "OPTIONS").Name("calendar-new-event")
	router.HandleFunc("/calendar/events", handler.HandleListEvents).Methods("GET").Name("calendar-list-events")
	router.HandleFunc("/calendar/events/{id}", handler.HandleUpdateEvent).Methods("PUT", "OPTIONS").Name("calendar-update-event")
	router.HandleFunc("/calendar/events/{id}", handler.HandleDeleteEvent).Methods("DELETE", "OPTIONS").Name("calendar-delete-event")
	router.HandleFunc("/calendar/sync", handler.HandleSync).Methods("POST", "OPTIONS").Name("calendar-sync")
}

type AuthResponse struct {
	AuthURL string `json:"authUrl"`
}

func (handler *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.auth")
	defer span.End()

	state := handler.randStateGenerator()
	handler.pendingStatesMutex.Lock()
	handler.pendingStates[state] = struct{}{}
	handler.pendingStatesMutex.Unlock()

	pkg.SendJsonResponse(w, http.StatusOK, AuthResponse{
		AuthURL: handler.adapter.AuthURL(state),
	})
}

// HandleCallback trades the authorization code for tokens and redirects the
// browser back to the app with an opaque one-shot session reference. The
// tokens themselves never appear in a URL.
func (handler *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.callback")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	state := r.URL.Query().Get("state")
	handler.pendingStatesMutex.Lock()
	_, stateKnown := handler.pendingStates[state]
	delete(handler.pendingStates, state)
	handler.pendingStatesMutex.Unlock()
	if !stateKnown {
		http.Error(w, "state mismatch", http.StatusForbidden)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "error, code empty", http.StatusBadRequest)
		return
	}

	creds, err := handler.adapter.Exchange(ctx, code)
	if err != nil {
		log.Errorf("calendar callback, exchange code: %s", err)
		http.Error(w, "failed to get token", http.StatusForbidden)
		return
	}

	sessionRef, err := handler.tokenStore.Store(ctx, *creds)
	if err != nil {
		log.Errorf("calendar callback, store credentials: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("%s/calendar?session=%s", handler.frontendURL, sessionRef), http.StatusFound)
}

// HandleClaimTokens hands the parked credentials to the app, once.
func (handler *Handler) HandleClaimTokens(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.claimTokens")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	sessionRef := r.URL.Query().Get("session")
	if sessionRef == "" {
		http.Error(w, "error, session empty", http.StatusBadRequest)
		return
	}

	creds, err := handler.tokenStore.Claim(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("calendar claim tokens: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, creds)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (handler *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.refresh")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("calendar refresh, unmarshal json params: %s", err)
		http.Error(w, "refresh failed", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		http.Error(w, "error, refresh token empty", http.StatusBadRequest)
		return
	}

	creds := &Credentials{RefreshToken: req.RefreshToken}
	if err = handler.adapter.Refresh(ctx, creds); err != nil {
		log.Errorf("calendar refresh: %s", err)
		pkg.SendJsonError(w, http.StatusUnauthorized, "re-authorization required", err.Error())
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, creds)
}

// credentialsFromRequest reads the token pair the app sends with every
// calendar operation.
func credentialsFromRequest(r *http.Request) *Credentials {
	return &Credentials{
		AccessToken:  r.Header.Get(accessTokenHeader),
		RefreshToken: r.Header.Get(refreshTokenHeader),
	}
}

func (handler *Handler) writeAdapterError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		http.Error(w, "calendar not connected", http.StatusUnauthorized)
	case errors.Is(err, ErrReauthorizationRequired):
		pkg.SendJsonError(w, http.StatusUnauthorized, "re-authorization required", err.Error())
	default:
		log.Errorf("calendar %s: %s", operation, err)
		http.Error(w, fmt.Sprintf("calendar %s failed", operation), http.StatusInternalServerError)
	}
}

type EventRequest struct {
	Summary         string `json:"summary"`
	Description     string `json:"description"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"durationMinutes"`
	ColorID         string `json:"colorId,omitempty"`
}

func (req *EventRequest) toEvent(timezone string) (*gcalendar.Event, error) {
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 60
	}

	return &gcalendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		ColorId:     req.ColorID,
		Start: &gcalendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: timezone,
		},
		End: &gcalendar.EventDateTime{
			DateTime: start.Add(time.Duration(duration) * time.Minute).Format(time.RFC3339),
			TimeZone: timezone,
		},
	}, nil
}

type CreateEventResponse struct {
	EventID string `json:"eventId"`
	// Credentials echoes the possibly refreshed token pair, the caller has
	// to persist it for future requests.
	Credentials *Credentials `json:"credentials"`
}

func (handler *Handler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.newEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("calendar new event, unmarshal json params: %s", err)
		http.Error(w, "create event failed", http.StatusBadRequest)
		return
	}
	if req.Summary == "" {
		http.Error(w, "error, summary empty", http.StatusBadRequest)
		return
	}

	event, err := req.toEvent(handler.timezone)
	if err != nil {
		http.Error(w, "error, invalid start time", http.StatusBadRequest)
		return
	}

	creds := credentialsFromRequest(r)
	eventID, err := handler.adapter.CreateEvent(ctx, creds, event)
	if err != nil {
		handler.writeAdapterError(w, err, "create event")
		return
	}

	pkg.SendJsonResponse(w, http.StatusCreated, CreateEventResponse{
		EventID:     eventID,
		Credentials: creds,
	})
}

type ListEventsResponse struct {
	Events      []*gcalendar.Event `json:"events"`
	Credentials *Credentials       `json:"credentials"`
}

func (handler *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.listEvents")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	maxResults := int64(50)
	if maxParam := r.URL.Query().Get("maxResults"); maxParam != "" {
		if _, scanErr := fmt.Sscanf(maxParam, "%d", &maxResults); scanErr != nil || maxResults < 1 {
			http.Error(w, "error, invalid maxResults", http.StatusBadRequest)
			return
		}
	}

	creds := credentialsFromRequest(r)
	events, err := handler.adapter.ListEvents(ctx, creds, maxResults)
	if err != nil {
		handler.writeAdapterError(w, err, "list events")
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, ListEventsResponse{
		Events:      events,
		Credentials: creds,
	})
}

func (handler *Handler) HandleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.updateEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	eventID := mux.Vars(r)["id"]
	if eventID == "" {
		http.Error(w, "error, event id empty", http.StatusBadRequest)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("calendar update event, unmarshal json params: %s", err)
		http.Error(w, "update event failed", http.StatusBadRequest)
		return
	}

	event, err := req.toEvent(handler.timezone)
	if err != nil {
		http.Error(w, "error, invalid start time", http.StatusBadRequest)
		return
	}

	creds := credentialsFromRequest(r)
	if err = handler.adapter.UpdateEvent(ctx, creds, eventID, event); err != nil {
		handler.writeAdapterError(w, err, "update event")
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, CreateEventResponse{
		EventID:     eventID,
		Credentials: creds,
	})
}

func (handler *Handler) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.deleteEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	eventID := mux.Vars(r)["id"]
	if eventID == "" {
		http.Error(w, "error, event id empty", http.StatusBadRequest)
		return
	}

	creds := credentialsFromRequest(r)
	if err = handler.adapter.DeleteEvent(ctx, creds, eventID); err != nil {
		handler.writeAdapterError(w, err, "delete event")
		return
	}

	pkg.SendJsonResponse(w, http.StatusOK, CreateEventResponse{
		EventID:     eventID,
		Credentials: creds,
	})
}

type SyncRequest struct {
	GoalID      string                     `json:"goalId"`
	WorkoutPlan plans.GeneratedWorkoutPlan `json:"workoutPlan"`
	MealPlan    plans.GeneratedMealPlan    `json:"mealPlan"`
	WorkoutHour int                        `json:"workoutHour,omitempty"`
}

type CreatedEvent struct {
	EventID string `json:"eventId"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
}

type SyncResponse struct {
	CreatedEvents []CreatedEvent `json:"createdEvents"`
	Errors        []string       `json:"errors"`
	Credentials   *Credentials   `json:"credentials"`
}

// HandleSync pushes a whole generated plan into the calendar. Every event is
// attempted independently, one failure does not abort the siblings, failures
// are collected next to the created events.
func (handler *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.sync")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("calendar sync, unmarshal json params: %s", err)
		http.Error(w, "sync failed", http.StatusBadRequest)
		return
	}
	if req.GoalID == "" {
		http.Error(w, "error, goal id empty", http.StatusBadRequest)
		return
	}

	creds := credentialsFromRequest(r)
	if creds.AccessToken == "" {
		http.Error(w, "calendar not connected", http.StatusUnauthorized)
		return
	}

	workoutHour := req.WorkoutHour
	if workoutHour <= 0 || workoutHour > 23 {
		workoutHour = defaultWorkoutHour
	}

	response := SyncResponse{
		CreatedEvents: []CreatedEvent{},
		Errors:        []string{},
	}
	now := time.Now()

	var syncErr error
	createEvent := func(event *gcalendar.Event, label string) {
		eventID, createErr := handler.adapter.CreateEvent(ctx, creds, event)
		if createErr != nil {
			syncErr = multierr.Append(syncErr, fmt.Errorf("%s: %w", label, createErr))
			response.Errors = append(response.Errors, fmt.Sprintf("%s: %s", label, createErr))
			return
		}
		response.CreatedEvents = append(response.CreatedEvents, CreatedEvent{
			EventID: eventID,
			Summary: event.Summary,
			Start:   event.Start.DateTime,
		})
	}

	for _, day := range req.WorkoutPlan.WeeklySchedule {
		weekday, parseErr := ParseWeekday(day.Day)
		if parseErr != nil {
			response.Errors = append(response.Errors, fmt.Sprintf("workout %s: %s", day.Day, parseErr))
			continue
		}

		start := NextWeekday(now, weekday, workoutHour)
		createEvent(WorkoutEvent(req.GoalID, day, start, handler.timezone), "workout "+day.Day)
	}

	for _, mealDay := range req.MealPlan.WeeklyMeals {
		weekday, parseErr := ParseWeekday(mealDay.Day)
		if parseErr != nil {
			response.Errors = append(response.Errors, fmt.Sprintf("meals %s: %s", mealDay.Day, parseErr))
			continue
		}

		for _, meal := range mealDay.Meals {
			start := NextWeekday(now, weekday, mealHour(meal.Meal))
			createEvent(MealEvent(req.GoalID, meal, start, handler.timezone), fmt.Sprintf("meal %s %s", mealDay.Day, meal.Meal))
		}
	}

	if syncErr != nil {
		log.Warnf(
			"calendar sync for goal %s finished with %d events created and errors: %s",
			req.GoalID, len(response.CreatedEvents), syncErr,
		)
	}

	response.Credentials = creds
	pkg.SendJsonResponse(w, http.StatusOK, response)
}
