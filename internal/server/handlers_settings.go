package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
	"localvault/internal/settings"
)

func (s *Server) handleSettingsGet(c *gin.Context) {
	m, err := s.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleSettingsPut(c *gin.Context) {
	var m settings.Model
	if err := c.ShouldBindJSON(&m); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}
	if err := m.Validate(); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}
	out, err := s.settings.Put(c.Request.Context(), m)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, out)
}

