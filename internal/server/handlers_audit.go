package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"localvault/internal/audit"
)

func (s *Server) handleAuditList(c *gin.Context) {
	var events []audit.Event
	err := s.store.WithTx(c.Request.Context(), func(tx *sql.Tx) error {
		var err error
		events, err = audit.List(tx)
		return err
	})
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, events)
}
