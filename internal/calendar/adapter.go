package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fitcoachapp/backend/internal/telemetry/metrics"
	"github.com/fitcoachapp/backend/internal/telemetry/tracing"
)

var (
	// ErrUnauthenticated rejects operations before any external call is made.
	ErrUnauthenticated = errors.New("calendar not authenticated")
	// ErrReauthorizationRequired means the refresh token is spent or revoked,
	// the user has to go through the consent screen again.
	ErrReauthorizationRequired = errors.New("token refresh failed, re-authorization required")
)

// Credentials is the in-memory token pair held for the duration of one
// request. A successful refresh updates only this copy, persisting the new
// access token is the caller's job.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

type eventsAPI interface {
	Insert(ctx context.Context, event *gcalendar.Event) (*gcalendar.Event, error)
	Update(ctx context.Context, eventID string, event *gcalendar.Event) (*gcalendar.Event, error)
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context, maxResults int64) ([]*gcalendar.Event, error)
}

type Adapter struct {
	conf       *oauth2.Config
	timeout    time.Duration
	metrics    *metrics.Manager
	httpClient *http.Client

	// swapped out in tests
	newEventsAPI func(ctx context.Context, accessToken string) (eventsAPI, error)
	refreshToken func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type NewAdapterParams struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
}

func NewAdapter(params NewAdapterParams, metricsManager *metrics.Manager) *Adapter {
	conf := &oauth2.Config{
		ClientID:     params.ClientID,
		ClientSecret: params.ClientSecret,
		RedirectURL:  params.RedirectURI,
		Scopes:       []string{gcalendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	a := &Adapter{
		conf:    conf,
		timeout: timeout,
		metrics: metricsManager,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	a.newEventsAPI = a.newGoogleEventsAPI
	a.refreshToken = a.refreshViaGoogle
	return a
}

// AuthURL returns the consent screen URL. Offline access is requested so the
// provider hands out a refresh token.
func (a *Adapter) AuthURL(state string) string {
	return a.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token pair.
func (a *Adapter) Exchange(ctx context.Context, code string) (_ *Credentials, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.exchange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	return &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// Refresh exchanges the refresh token for a fresh access token.
func (a *Adapter) Refresh(ctx context.Context, creds *Credentials) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.refresh")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if creds == nil || creds.RefreshToken == "" {
		return ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.refreshToken(ctx, creds.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReauthorizationRequired, err)
	}

	a.metrics.CounterTokenRefreshes.Inc()

	creds.AccessToken = token.AccessToken
	creds.Expiry = token.Expiry
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}

	return nil
}

// CreateEvent inserts the event and returns the provider event id.
func (a *Adapter) CreateEvent(ctx context.Context, creds *Credentials, event *gcalendar.Event) (eventID string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.createEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	err = a.withAuthRetry(ctx, creds, func(opCtx context.Context, api eventsAPI) error {
		created, insertErr := api.Insert(opCtx, event)
		if insertErr != nil {
			return insertErr
		}
		eventID = created.Id
		return nil
	})
	if err != nil {
		return "", err
	}

	a.metrics.CounterCalendarEvents.Inc()

	return eventID, nil
}

func (a *Adapter) UpdateEvent(ctx context.Context, creds *Credentials, eventID string, event *gcalendar.Event) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.updateEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return a.withAuthRetry(ctx, creds, func(opCtx context.Context, api eventsAPI) error {
		_, updateErr := api.Update(opCtx, eventID, event)
		return updateErr
	})
}

func (a *Adapter) DeleteEvent(ctx context.Context, creds *Credentials, eventID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.deleteEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return a.withAuthRetry(ctx, creds, func(opCtx context.Context, api eventsAPI) error {
		return api.Delete(opCtx, eventID)
	})
}

func (a *Adapter) ListEvents(ctx context.Context, creds *Credentials, maxResults int64) (events []*gcalendar.Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.listEvents")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	err = a.withAuthRetry(ctx, creds, func(opCtx context.Context, api eventsAPI) error {
		listed, listErr := api.List(opCtx, maxResults)
		if listErr != nil {
			return listErr
		}
		events = listed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// withAuthRetry runs one calendar operation with the refresh-and-retry
// policy: on an authentication failure the token is refreshed and the
// operation retried exactly once. A second authentication failure, or a
// failed refresh, ends in ErrReauthorizationRequired.
func (a *Adapter) withAuthRetry(
	ctx context.Context,
	creds *Credentials,
	op func(ctx context.Context, api eventsAPI) error,
) error {
	if creds == nil || creds.AccessToken == "" {
		return ErrUnauthenticated
	}

	opErr := a.runOp(ctx, creds.AccessToken, op)
	if opErr == nil {
		return nil
	}

	if !isAuthError(opErr) {
		return opErr
	}
	if creds.RefreshToken == "" {
		return fmt.Errorf("%w: %s", ErrReauthorizationRequired, opErr)
	}

	log.Debugf("calendar call got an auth error, refreshing token and retrying: %s", opErr)

	if err := a.Refresh(ctx, creds); err != nil {
		return err
	}

	retryErr := a.runOp(ctx, creds.AccessToken, op)
	if retryErr == nil {
		return nil
	}
	if isAuthError(retryErr) {
		// one retry only
		return fmt.Errorf("%w: %s", ErrReauthorizationRequired, retryErr)
	}
	return retryErr
}

func (a *Adapter) runOp(
	ctx context.Context,
	accessToken string,
	op func(ctx context.Context, api eventsAPI) error,
) error {
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	api, err := a.newEventsAPI(opCtx, accessToken)
	if err != nil {
		return fmt.Errorf("create calendar client: %w", err)
	}

	return op(opCtx, api)
}

// isAuthError matches HTTP 401 responses and provider error messages that
// point at a dead access token.
func isAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "credentials") || strings.Contains(msg, "authentication")
}

// googleEventsAPI is the production eventsAPI, backed by the primary
// calendar of the authenticated user.
type googleEventsAPI struct {
	service *gcalendar.Service
}

// The static token source keeps the oauth2 transport from refreshing behind
// our back, the refresh-and-retry policy above stays the only refresh path.
func (a *Adapter) newGoogleEventsAPI(ctx context.Context, accessToken string) (eventsAPI, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := gcalendar.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}
	return &googleEventsAPI{service: service}, nil
}

func (a *Adapter) refreshViaGoogle(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	return a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (g *googleEventsAPI) Insert(ctx context.Context, event *gcalendar.Event) (*gcalendar.Event, error) {
	return g.service.Events.Insert("primary", event).Context(ctx).Do()
}

func (g *googleEventsAPI) Update(ctx context.Context, eventID string, event *gcalendar.Event) (*gcalendar.Event, error) {
	return g.service.Events.Update("primary", eventID, event).Context(ctx).Do()
}

func (g *googleEventsAPI) Delete(ctx context.Context, eventID string) error {
	return g.service.Events.Delete("primary", eventID).Context(ctx).Do()
}

func (g *googleEventsAPI) List(ctx context.Context, maxResults int64) ([]*gcalendar.Event, error) {
	events, err := g.service.Events.
		List("primary").
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(time.Now().Format(time.RFC3339)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return events.Items, nil
}
