// Package router wires the HTTP surface: request decoding and validation,
// the authentication and identity-gate middleware chain, and the mapping of
// domain errors to HTTP statuses. Handlers never touch storage directly -
// they call the service layer and translate its typed failures.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/newswatcher/internal/auth"
	"github.com/patric-chuzhbe/newswatcher/internal/gzippedhttp"
	"github.com/patric-chuzhbe/newswatcher/internal/ipchecker"
	"github.com/patric-chuzhbe/newswatcher/internal/logger"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

const registrationValidationMessage = "Invalid field: display name 3 to 50 alphanumeric, valid email, password 7 to 15 (one number, one special character)"

type newsService interface {
	Register(ctx context.Context, request models.RegisterRequest) (*user.User, error)
	Login(ctx context.Context, request models.LoginRequest) (*user.User, error)
	FetchProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, request models.ProfileUpdateRequest) error
	SaveStory(ctx context.Context, userID string, story user.Story) ([]user.Story, error)
	RemoveStory(ctx context.Context, userID, storyID string) ([]user.Story, error)
	DeleteAccount(ctx context.Context, userID string) error
	HomeNews(ctx context.Context) ([]user.Story, error)
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

// Router holds the HTTP handlers of the service.
type Router struct {
	svc         newsService
	auth        *auth.Auth
	ipChecker   *ipchecker.IPChecker
	validate    *validator.Validate
	environment string
}

// New builds the chi handler tree with the full middleware chain.
func New(
	svc newsService,
	theAuth *auth.Auth,
	theIPChecker *ipchecker.IPChecker,
	environment string,
) (http.Handler, error) {
	validate := validator.New()
	if err := validate.RegisterValidation("accountpassword", validateAccountPassword); err != nil {
		return nil, err
	}

	theRouter := &Router{
		svc:         svc,
		auth:        theAuth,
		ipChecker:   theIPChecker,
		validate:    validate,
		environment: environment,
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		gzippedhttp.UngzipJSONAndTextHTMLRequest,
	)

	router.Get(`/ping`, theRouter.GetPing)

	router.Route(`/api`, func(api chi.Router) {
		api.With(gzippedhttp.GzipResponse).Get(`/homenews`, theRouter.GetAPIHomeNews)

		api.Post(`/users`, theRouter.PostAPIUsers)
		api.Post(`/session`, theRouter.PostAPISession)
		api.With(theAuth.AuthenticateUser).Delete(`/session`, theRouter.DeleteAPISession)

		api.Get(`/internal/stats`, theRouter.GetAPIInternalStats)

		api.Route(`/users/{userID}`, func(usersAPI chi.Router) {
			usersAPI.Use(
				theAuth.AuthenticateUser,
				theAuth.RequireSelf("userID"),
			)
			usersAPI.With(gzippedhttp.GzipResponse).Get(`/`, theRouter.GetAPIUser)
			usersAPI.Put(`/`, theRouter.PutAPIUser)
			usersAPI.Delete(`/`, theRouter.DeleteAPIUser)
			usersAPI.Post(`/savedstories`, theRouter.PostAPISavedStories)
			usersAPI.Delete(`/savedstories/{storyID}`, theRouter.DeleteAPISavedStory)
		})
	})

	return router, nil
}

// PostAPIUsers handles registration. Validation failures are reported with
// one descriptive message; a duplicate e-mail yields 403.
func (rt *Router) PostAPIUsers(response http.ResponseWriter, request *http.Request) {
	registerRequest := models.RegisterRequest{}
	if err := rt.decodeAndValidate(request, &registerRequest); err != nil {
		rt.writeError(response, http.StatusBadRequest, registrationValidationMessage, err)

		return
	}

	usr, err := rt.svc.Register(request.Context(), registerRequest)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			rt.writeError(response, http.StatusForbidden, "Email account already registered", err)

			return
		}
		rt.writeError(response, http.StatusInternalServerError, "Unable to register the account", err)

		return
	}

	rt.writeJSON(response, http.StatusCreated, accountProjection(usr))
}

// PostAPISession handles login: it verifies the credentials and issues a
// session token, returned in the body and as the auth cookie.
func (rt *Router) PostAPISession(response http.ResponseWriter, request *http.Request) {
	loginRequest := models.LoginRequest{}
	if err := rt.decodeAndValidate(request, &loginRequest); err != nil {
		rt.writeError(response, http.StatusBadRequest, "Invalid login request", err)

		return
	}

	usr, err := rt.svc.Login(request.Context(), loginRequest)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			rt.writeError(response, http.StatusUnauthorized, "Invalid email or password", err)

			return
		}
		rt.writeError(response, http.StatusInternalServerError, "Unable to log in", err)

		return
	}

	tokenString, err := rt.auth.Issue(usr.ID)
	if err != nil {
		rt.writeError(response, http.StatusInternalServerError, "Unable to issue the session token", err)

		return
	}

	rt.auth.SetAuthCookie(response, tokenString)

	rt.writeJSON(response, http.StatusCreated, models.LoginResponse{
		Token:       tokenString,
		UserID:      usr.ID,
		DisplayName: usr.DisplayName,
	})
}

// DeleteAPISession handles logout. Tokens are stateless, so there is nothing
// to revoke server-side - the client discards the token and the cookie is
// cleared; the token itself stays valid until its natural expiry.
func (rt *Router) DeleteAPISession(response http.ResponseWriter, request *http.Request) {
	rt.auth.ClearAuthCookie(response)

	rt.writeJSON(response, http.StatusOK, map[string]string{"msg": "Logged out"})
}

// GetAPIUser returns the account profile projection. The payload contains
// account data, so cache-prevention headers are mandatory.
func (rt *Router) GetAPIUser(response http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")

	profile, err := rt.svc.FetchProfile(request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			rt.writeError(response, http.StatusNotFound, "Account not found", err)

			return
		}
		rt.writeError(response, http.StatusInternalServerError, "Unable to fetch the profile", err)

		return
	}

	response.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	response.Header().Set("Pragma", "no-cache")
	response.Header().Set("Expires", "0")

	rt.writeJSON(response, http.StatusOK, profile)
}

// PutAPIUser replaces the account's settings and news filters.
func (rt *Router) PutAPIUser(response http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")

	updateRequest := models.ProfileUpdateRequest{}
	if err := rt.decodeAndValidate(request, &updateRequest); err != nil {
		rt.writeError(response, http.StatusBadRequest, "Invalid profile update request", err)

		return
	}

	if err := rt.svc.UpdateProfile(request.Context(), userID, updateRequest); err != nil {
		rt.writeServiceError(response, err, "Unable to update the profile")

		return
	}

	rt.writeJSON(response, http.StatusOK, map[string]string{"msg": "User updated"})
}

// DeleteAPIUser permanently deletes the account. A second delete of the
// same account reports already-deleted via 404.
func (rt *Router) DeleteAPIUser(response http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")

	if err := rt.svc.DeleteAccount(request.Context(), userID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			rt.writeError(response, http.StatusNotFound, "Account already deleted", err)

			return
		}
		rt.writeError(response, http.StatusConflict, "Account deletion failure", err)

		return
	}

	rt.writeJSON(response, http.StatusOK, map[string]string{"msg": "User Deleted"})
}

// PostAPISavedStories adds a story to the saved-story set and returns the
// pre-update snapshot. A rejected save (duplicate story or set at capacity)
// yields 403 without distinguishing the cause.
func (rt *Router) PostAPISavedStories(response http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")

	story := user.Story{}
	if err := rt.decodeAndValidate(request, &story); err != nil {
		rt.writeError(response, http.StatusBadRequest, "Invalid story payload", err)

		return
	}

	savedStories, err := rt.svc.SaveStory(request.Context(), userID, story)
	if err != nil {
		if errors.Is(err, models.ErrSaveRejected) {
			rt.writeError(response, http.StatusForbidden, "Over the save limit, or story already saved", err)

			return
		}
		rt.writeError(response, http.StatusConflict, "Story save failure", err)

		return
	}

	rt.writeJSON(response, http.StatusOK, models.SavedStoriesResponse{SavedStories: savedStories})
}

// DeleteAPISavedStory removes a story from the saved-story set and returns
// the pre-update snapshot. Removing an absent story is a successful no-op.
func (rt *Router) DeleteAPISavedStory(response http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "userID")
	storyID := chi.URLParam(request, "storyID")

	savedStories, err := rt.svc.RemoveStory(request.Context(), userID, storyID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			rt.writeError(response, http.StatusNotFound, "Account not found", err)

			return
		}
		rt.writeError(response, http.StatusConflict, "Story delete failure", err)

		return
	}

	rt.writeJSON(response, http.StatusOK, models.SavedStoriesResponse{SavedStories: savedStories})
}

// GetAPIHomeNews returns the shared home-news snapshot. It requires no
// authentication.
func (rt *Router) GetAPIHomeNews(response http.ResponseWriter, request *http.Request) {
	stories, err := rt.svc.HomeNews(request.Context())
	if err != nil {
		rt.writeError(response, http.StatusInternalServerError, "Unable to fetch home news", err)

		return
	}

	rt.writeJSON(response, http.StatusOK, stories)
}

// GetAPIInternalStats reports service-wide counters. It is reachable only
// from the trusted subnet.
func (rt *Router) GetAPIInternalStats(response http.ResponseWriter, request *http.Request) {
	if rt.ipChecker.IsTrustedSubnetEmpty() {
		rt.writeError(response, http.StatusForbidden, "Forbidden", nil)

		return
	}

	clientIP, err := rt.ipChecker.GetClientIP(request)
	if err != nil {
		rt.writeError(response, http.StatusInternalServerError, "Unable to determine the client IP", err)

		return
	}

	if !rt.ipChecker.Check(clientIP) {
		rt.writeError(response, http.StatusForbidden, "Forbidden", nil)

		return
	}

	stats, err := rt.svc.GetInternalStats(request.Context())
	if err != nil {
		rt.writeError(response, http.StatusInternalServerError, "Unable to fetch the stats", err)

		return
	}

	rt.writeJSON(response, http.StatusOK, stats)
}

// GetPing reports storage health.
func (rt *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := rt.svc.Ping(request.Context()); err != nil {
		rt.writeError(response, http.StatusInternalServerError, "Storage is unreachable", err)

		return
	}

	response.WriteHeader(http.StatusOK)
}

func (rt *Router) decodeAndValidate(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return err
	}

	return rt.validate.Struct(target)
}

func (rt *Router) writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error encoding the response: ", zap.Error(err))
	}
}

// writeError renders the failure as JSON. In production only the message is
// exposed; other environments include the error detail for debugging.
func (rt *Router) writeError(response http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		logger.Log.Debugln("Request failed: ", zap.Int("status", status), zap.Error(err))
	}

	errorDetail := map[string]interface{}{}
	if rt.environment != "production" && err != nil {
		errorDetail["detail"] = err.Error()
	}

	rt.writeJSON(response, status, map[string]interface{}{
		"message": message,
		"error":   errorDetail,
	})
}

func (rt *Router) writeServiceError(response http.ResponseWriter, err error, message string) {
	if errors.Is(err, models.ErrUserNotFound) {
		rt.writeError(response, http.StatusNotFound, "Account not found", err)

		return
	}

	rt.writeError(response, http.StatusConflict, message, err)
}

func accountProjection(usr *user.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           usr.ID,
		"email":        usr.Email,
		"displayName":  usr.DisplayName,
		"date":         usr.CreatedAt,
		"settings":     usr.Settings,
		"newsFilters":  usr.NewsFilters,
		"savedStories": usr.SavedStories,
	}
}

// validateAccountPassword enforces the registration password rule: 7 to 15
// characters from [a-zA-Z0-9!@#$%^&*] with at least one digit and at least
// one special character. The rule needs lookaheads in regexp form, which Go
// regexps do not support, so it is checked explicitly.
func validateAccountPassword(fieldLevel validator.FieldLevel) bool {
	password := fieldLevel.Field().String()

	if len(password) < 7 || len(password) > 15 {
		return false
	}

	hasDigit := false
	hasSpecial := false
	for _, char := range password {
		switch {
		case char >= '0' && char <= '9':
			hasDigit = true
		case strings.ContainsRune("!@#$%^&*", char):
			hasSpecial = true
		case (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z'):
		default:
			return false
		}
	}

	return hasDigit && hasSpecial
}
