package middleware

import (
	"net/http"

	"github.com/fitcoachapp/backend/pkg"

	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent := r.Header.Get("User-Agent")
			userIP, err := pkg.ReadUserIP(r)
			if err != nil {
				userIP = r.RemoteAddr
			}
			log.Tracef(" ====> request [%s] path: [%s] [UA: %s] [IP: %s]", r.Method, r.URL.Path, userAgent, userIP)
			next.ServeHTTP(w, r)
		})
	}
}
