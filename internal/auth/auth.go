// Package auth implements the session token lifecycle and the request-level
// authorization gate. Tokens are stateless signed JWTs: issuing produces a
// self-contained credential binding a user identity to an expiry instant,
// verification recomputes the signature and checks the expiry. There is no
// server-side session record, so logout is a client-side token discard and
// natural expiry is the only enforced boundary.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/newswatcher/internal/logger"
)

// ErrTokenMalformed is returned when the presented token cannot be parsed.
var ErrTokenMalformed = errors.New("malformed session token")

// ErrTokenExpired is returned when the token's expiry instant has passed.
var ErrTokenExpired = errors.New("session token expired")

// ErrTokenInvalid is returned when the signature does not verify or the
// claims are unusable.
var ErrTokenInvalid = errors.New("invalid session token")

// Auth issues and verifies session tokens and provides the HTTP middleware
// enforcing them.
type Auth struct {
	// authCookieName is the name of the cookie used to transport the token
	// when the Authorization header is absent.
	authCookieName string

	// signingSecretKey is the server-held secret the token signature is
	// computed with. Loaded once at startup, read-only afterwards.
	signingSecretKey []byte

	// tokenTTL bounds the lifetime of every issued token.
	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds a user-specific identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// New creates a new Auth handler with the given cookie name, signing secret
// and token lifetime.
func New(
	authCookieName string,
	signingSecretKey []byte,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		authCookieName:   authCookieName,
		signingSecretKey: signingSecretKey,
		tokenTTL:         tokenTTL,
	}
}

// Issue creates a signed session token for the given user identity.
// It is called only after password verification has succeeded.
func (a *Auth) Issue(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(a.signingSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify recomputes the token signature and checks the expiry, returning the
// subject identity. All failures are typed; callers must treat every one of
// them as "unauthenticated".
func (a *Auth) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrTokenMalformed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrTokenMalformed

	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired

	case err != nil || !token.Valid:
		return "", ErrTokenInvalid
	}

	if claims.UserID == "" {
		return "", ErrTokenInvalid
	}

	return claims.UserID, nil
}

// AuthenticateUser is an HTTP middleware that verifies the session token
// found in the Authorization header or the auth cookie and stores the
// verified identity in the request context. Requests without a usable token
// are rejected with 401 before reaching the handler.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		userID, err := a.Verify(a.getTokenStringFromAuthorizationHeaderOrCookie(request))
		if err != nil {
			logger.Log.Debugln("Session token verification failed: ", zap.Error(err))
			writeUnauthorized(response, "session token missing or invalid")

			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, userID)
		requestWithCtx := request.WithContext(ctx)

		h.ServeHTTP(response, requestWithCtx)
	}

	return http.HandlerFunc(middleware)
}

// RequireSelf is an HTTP middleware factory binding the identity claimed in
// the URL parameter to the token's verified subject. A mismatch is a hard
// authorization failure: a valid token for user A must not operate on user
// B's resource path. It must run before any storage access.
func (a *Auth) RequireSelf(urlParamName string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		middleware := func(response http.ResponseWriter, request *http.Request) {
			userID, ok := request.Context().Value(UserIDKey).(string)
			if !ok || userID == "" {
				writeUnauthorized(response, "session token missing or invalid")

				return
			}

			if chi.URLParam(request, urlParamName) != userID {
				writeUnauthorized(response, "request identity does not match the session token")

				return
			}

			h.ServeHTTP(response, request)
		}

		return http.HandlerFunc(middleware)
	}
}

// SetAuthCookie stores the session token in the auth cookie.
func (a *Auth) SetAuthCookie(response http.ResponseWriter, tokenString string) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:  a.authCookieName,
			Value: tokenString,
		},
	)
}

// ClearAuthCookie drops the auth cookie. The token itself stays valid until
// its expiry instant - there is no server-side revocation record.
func (a *Auth) ClearAuthCookie(response http.ResponseWriter) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:   a.authCookieName,
			Value:  "",
			MaxAge: -1,
		},
	)
}

// UserIDFromContext extracts the verified identity stored by AuthenticateUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)

	return userID, ok && userID != ""
}

func writeUnauthorized(response http.ResponseWriter, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(response).Encode(map[string]string{"message": message}); err != nil {
		logger.Log.Debugln("Error encoding the unauthorized response: ", zap.Error(err))
	}
}

func (a *Auth) getTokenStringFromAuthorizationHeaderOrCookie(request *http.Request) string {
	tokenString := request.Header.Get("Authorization")
	if tokenString != "" {
		return tokenString
	}
	cookie, err := request.Cookie(a.authCookieName)
	if err == nil {
		tokenString = cookie.Value
	}

	return tokenString
}
