package utils

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const UserIDKey contextKey = "userID"

// LoginURL is where unauthenticated requests are sent, with the original
// target preserved in the "next" query parameter.
const LoginURL = "/auth/login/"


func GetUserIDFromContext(r *http.Request) (uint, error) {
    userID, ok := r.Context().Value(UserIDKey).(uint)
    if !ok {
        return 0, errors.New("user ID not found in context")
    }
    return userID, nil
}

// CurrentUserID resolves the requester's identity without enforcing it.
// Public pages use this to personalize output for logged-in viewers.
func CurrentUserID(r *http.Request) (uint, bool) {
    userID, err := userIDFromRequest(r)
    if err != nil {
        return 0, false
    }
    return userID, true
}


// LoginRequired gates a handler behind authentication. Guests are
// redirected to the login page with the original URL as ?next=.
func LoginRequired(next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        userID, err := userIDFromRequest(r)
        if err != nil {
            http.Redirect(w, r, LoginURL+"?next="+nextParam(r), http.StatusFound)
            return
        }

        ctx := context.WithValue(r.Context(), UserIDKey, userID)
        next(w, r.WithContext(ctx))
    }
}

// nextParam encodes the original target for the login continuation,
// leaving path separators readable.
func nextParam(r *http.Request) string {
    return strings.ReplaceAll(url.QueryEscape(r.URL.RequestURI()), "%2F", "/")
}

// userIDFromRequest accepts either a Bearer token or the auth_token
// cookie set at login.
func userIDFromRequest(r *http.Request) (uint, error) {
    tokenString := ""
    if authHeader := r.Header.Get("Authorization"); authHeader != "" {
        tokenString = strings.Replace(authHeader, "Bearer ", "", 1)
    } else if cookie, err := r.Cookie("auth_token"); err == nil {
        tokenString = cookie.Value
    }
    if tokenString == "" {
        return 0, errors.New("no credentials supplied")
    }

    claims := &jwt.RegisteredClaims{}
    token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
        return []byte(os.Getenv("SECRET_KEY")), nil
    })
    if err != nil || !token.Valid {
        return 0, errors.New("invalid token")
    }

    userID, err := strconv.ParseUint(claims.Subject, 10, 64)
    if err != nil {
        return 0, errors.New("invalid user ID in token")
    }
    return uint(userID), nil
}
