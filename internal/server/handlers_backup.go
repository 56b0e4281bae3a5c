package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"localvault/internal/apperr"
)

type backupExportRequest struct {
	ExportPassword string `json:"exportPassword"`
}

func (s *Server) handleBackupExport(c *gin.Context) {
	sess, _ := sessionFromContext(c)

	var req backupExportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.ErrValidation)
			return
		}
	}

	env, err := s.backup.Export(c.Request.Context(), sess.EncKey, req.ExportPassword)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, env)
}

func (s *Server) handleBackupImportPreview(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	raw, password, ok := readBackupUpload(c)
	if !ok {
		return
	}

	result, err := s.backup.Preview(c.Request.Context(), sess.EncKey, raw, password)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBackupImportApply(c *gin.Context) {
	sess, _ := sessionFromContext(c)
	raw, password, ok := readBackupUpload(c)
	if !ok {
		return
	}

	result, err := s.backup.Apply(c.Request.Context(), sess.EncKey, raw, password)
	if err != nil {
		respondError(c, asAppErr(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// readBackupUpload extracts the "file" multipart part and optional
// "password" form field. On malformed multipart input it writes a
// VALIDATION_ERROR response itself and returns ok=false.
func readBackupUpload(c *gin.Context) (raw []byte, password string, ok bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, apperr.ErrValidation)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, 16<<20))
	if err != nil {
		respondError(c, apperr.ErrValidation)
		return nil, "", false
	}
	return data, c.Request.FormValue("password"), true
}
