package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
)

// errorHandler turns a panicking handler into a 500 and drops the
// connection. http.ErrAbortHandler keeps its meaning and is re-raised.
func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			panicErr, ok := rec.(error)
			if !ok {
				panicErr = fmt.Errorf("%v", rec)
			}
			if errors.Is(panicErr, http.ErrAbortHandler) {
				panic(rec)
			}

			s.log.Printf("panic: %v (%s %s)", panicErr, r.Method, r.URL.Path)
			errResp := NewInternalServerError(panicErr)
			w.Header().Set("Connection", "close")
			s.writeJson(w, errResp.StatusCode, errResp)
		}()

		next.ServeHTTP(w, r)
	})
}

// accessLog writes one combined-format line per request to the app logger's
// output.
func (s *App) accessLog(next http.Handler) http.Handler {
	return handlers.CombinedLoggingHandler(s.log.Writer(), next)
}

// authMiddleware admits requests carrying a valid session token, from the
// cookie or a bearer header, and stores the user and token in the context.
func (s *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(tokenString)
		if err != nil {
			s.log.Printf("rejected token on %s: %v", r.URL.Path, err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(withSessionToken(WithUserId(r.Context(), userId), tokenString)))
	}
}
