package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleVaultStatus(c *gin.Context) {
	token, _ := c.Cookie(sessionCookieName)
	status, err := s.vault.Status(c.Request.Context(), token)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type setupRequest struct {
	MasterPassword string `json:"masterPassword" binding:"required"`
	Hint           string `json:"hint"`
}

func (s *Server) handleVaultSetup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}
	if l := len(req.MasterPassword); l < 12 || l > 128 {
		respondError(c, apperr.ErrValidation)
		return
	}
	if len(req.Hint) > 64 {
		respondError(c, apperr.ErrValidation)
		return
	}

	if err := s.vault.Setup(c.Request.Context(), req.MasterPassword, req.Hint); err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

type unlockRequest struct {
	MasterPassword string `json:"masterPassword" binding:"required"`
}

func (s *Server) handleVaultUnlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}

	sess, err := s.vault.Unlock(c.Request.Context(), req.MasterPassword)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}

	s.setAuthCookies(c, sess.Token, sess.CSRFToken)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleVaultLock(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	token := ""
	if sess != nil {
		token = sess.Token
	}
	if err := s.vault.Lock(c.Request.Context(), token); err != nil {
		respondError(c, asAppErr(err))
		return
	}
	s.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDebugCSRF(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	c.JSON(http.StatusOK, gin.H{"csrfToken": sess.CSRFToken})
}

func (s *Server) setAuthCookies(c *gin.Context, sessionToken, csrfToken string) {
	maxAge := s.cfg.SessionIdleMinutes * 60
	c.SetSameSite(http.SameSiteLaxMode)
	http.SetCookie(c.Writer, &http.Cookie{
		Name: sessionCookieName, Value: sessionToken, Path: "/",
		MaxAge: maxAge, HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name: csrfCookieName, Value: csrfToken, Path: "/",
		MaxAge: maxAge, HttpOnly: false, SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	http.SetCookie(c.Writer, &http.Cookie{
		Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name: csrfCookieName, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: false, SameSite: http.SameSiteLaxMode,
	})
}

// asAppErr normalizes any error returned by a service layer into an
// *apperr.Error, defaulting to INTERNAL_ERROR for anything unclassified.
func asAppErr(err error) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.ErrInternal
}
