package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const profileKey contextKey = "kioskProfile"

// ProfileCookieName holds the signed browser profile id.
const ProfileCookieName = "kiosk_profile"

const profileIssuer = "clinic-kiosk"

// ProfileCookie identifies the browser profile with an HMAC-signed JWT
// cookie, issuing a fresh profile when the cookie is missing or invalid.
// Every tab of one browser shares the profile and therefore its session.
func ProfileCookie(secret string, ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID, ok := parseProfile(r, secret)
			if !ok {
				var err error
				profileID, err = issueProfile(w, secret, ttl, secure)
				if err != nil {
					http.Error(w, "could not issue profile", http.StatusInternalServerError)
					return
				}
			}
			ctx := context.WithValue(r.Context(), profileKey, profileID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProfileFromContext returns the profile id if present.
func ProfileFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(profileKey).(string)
	return id, ok && id != ""
}

// WithProfile attaches a profile id to ctx.
func WithProfile(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileKey, profileID)
}

// SignProfile returns a signed profile token.
func SignProfile(secret, profileID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  profileID,
		Issuer:   profileIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseProfile(r *http.Request, secret string) (string, bool) {
	cookie, err := r.Cookie(ProfileCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(profileIssuer))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func issueProfile(w http.ResponseWriter, secret string, ttl time.Duration, secure bool) (string, error) {
	profileID := uuid.NewString()
	signed, err := SignProfile(secret, profileID, ttl)
	if err != nil {
		return "", err
	}
	cookie := &http.Cookie{
		Name:     ProfileCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	return profileID, nil
}
