package server

import (
	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
	"localvault/internal/session"
)

const sessionContextKey = "localvault.session"

// requireSession resolves the session_token cookie against the registry
// and stores the session on the context for downstream handlers. Missing
// or expired sessions fail with 401 UNAUTHORIZED.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookieName)
		if err != nil || token == "" {
			respondError(c, apperr.ErrUnauthorized)
			return
		}
		sess, ok := s.sessions.Get(token)
		if !ok {
			respondError(c, apperr.ErrUnauthorized)
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// requireCSRF enforces double-submit CSRF on state-changing requests. It
// must run after requireSession so it can compare against the resolved
// session's stored token.
func (s *Server) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFromContext(c)
		if !ok {
			respondError(c, apperr.ErrUnauthorized)
			return
		}

		cookieToken, cookieErr := c.Cookie(csrfCookieName)
		headerToken := c.GetHeader(csrfHeaderName)

		if cookieErr != nil || cookieToken == "" || headerToken == "" {
			respondError(c, apperr.ErrCSRFInvalid)
			return
		}
		if cookieToken != headerToken || cookieToken != sess.CSRFToken {
			respondError(c, apperr.ErrCSRFInvalid)
			return
		}
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) (*session.Data, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Data)
	return sess, ok
}

// respondError writes the uniform error envelope and aborts the chain.
func respondError(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(e.Status, e.ToEnvelope())
}
