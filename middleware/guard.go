package middleware

import (
	"net/http"
	"strings"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/gin-gonic/gin"
)

// RequireIdentity rejects requests without an authenticated identity with 401.
// It must run after [Interceptor.Handler].
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := goRenew.IdentityFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthority rejects unauthenticated requests with 401 and requests whose
// identity carries none of authorities with 403.
func RequireAuthority(authorities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := goRenew.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !id.HasAuthority(authorities...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GinRequireIdentity is the gin form of [RequireIdentity].
func GinRequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := goRenew.IdentityFromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// GinRequireAuthority is the gin form of [RequireAuthority].
func GinRequireAuthority(authorities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := goRenew.IdentityFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !id.HasAuthority(authorities...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
