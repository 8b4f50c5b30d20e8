package httpx

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader is set by the auth gateway in front of this service.
const UserHeader = "X-User-ID"

type userKey struct{}

// RequireUser rejects requests without a caller identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + UserHeader + " header", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func UserFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}
