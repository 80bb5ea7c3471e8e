package webd

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	ghandlers "github.com/gorilla/handlers"
)

// TokenEnv names the env var holding the ingest token.
const TokenEnv = "CATNAV_TOKEN"

// tokenAuthenticationMiddleware rejects requests without the token from
// TokenEnv, passed as a bearer Authorization header or an api_token query param.
// With no token set, it allows all requests.
func (s *WebDaemon) tokenAuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validToken := os.Getenv(TokenEnv)
		if validToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		if token == "" {
			token = r.URL.Query().Get("api_token")
		}
		if token != validToken {
			s.logger.Warn("Invalid token", "method", r.Method, "url", r.URL.Path,
				"remote", r.RemoteAddr, "user-agent", r.UserAgent())
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var permissiveCorsMiddleware = ghandlers.CORS(
	ghandlers.AllowedOrigins([]string{"*"}),
	ghandlers.AllowedHeaders([]string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"}),
	ghandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
)

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// writeLog writes one access line per request.
func writeLog(writer io.Writer, p ghandlers.LogFormatterParams) {
	host, _, err := net.SplitHostPort(p.Request.RemoteAddr)
	if err != nil {
		host = p.Request.RemoteAddr
	}
	for _, v := range p.Request.Header.Values("X-Forwarded-For") {
		host += "->" + v
	}
	_, _ = fmt.Fprintf(writer, "%s [%s] %q %d %d\n",
		host, p.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
		p.Request.Method+" "+p.URL.RequestURI()+" "+p.Request.Proto,
		p.StatusCode, p.Size)
}

var accessLog io.Writer = os.Stdout

func loggingMiddleware(next http.Handler) http.Handler {
	return ghandlers.CustomLoggingHandler(accessLog, next, writeLog)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return ghandlers.RecoveryHandler(ghandlers.PrintRecoveryStack(true))(next)
}
