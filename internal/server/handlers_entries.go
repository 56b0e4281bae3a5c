package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
	"localvault/internal/entries"
)

func (s *Server) handleEntryList(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	summaries, err := s.entries.List(c.Request.Context(), sess.EncKey)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, summaries)
}

type entryRequest struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Notes    string   `json:"notes"`
	Tags     []string `json:"tags"`
	Favorite bool     `json:"favorite"`
}

func (r entryRequest) toEntry() entries.Entry {
	return entries.Entry{
		Title:    r.Title,
		URL:      r.URL,
		Username: r.Username,
		Password: r.Password,
		Notes:    r.Notes,
		Tags:     r.Tags,
		Favorite: r.Favorite,
	}
}

func (s *Server) handleEntryCreate(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}
	e, err := s.entries.Create(c.Request.Context(), sess.EncKey, req.toEntry())
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) handleEntryGet(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	e, err := s.entries.Get(c.Request.Context(), sess.EncKey, c.Param("id"))
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleEntryUpdate(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.ErrValidation)
		return
	}
	e, err := s.entries.Update(c.Request.Context(), sess.EncKey, c.Param("id"), req.toEntry())
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleEntryDelete(c *gin.Context) {
	if err := s.entries.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}
