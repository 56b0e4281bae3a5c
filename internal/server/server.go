// Package server is the vault's HTTP control plane: a Gin router wiring
// together the request gate (session + CSRF), the vault lifecycle, entry
// CRUD, settings, audit, and backup services behind a uniform error
// envelope.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"localvault/internal/backup"
	"localvault/internal/config"
	"localvault/internal/entries"
	"localvault/internal/session"
	"localvault/internal/settings"
	"localvault/internal/vault"
	"localvault/internal/vstore"
)

const (
	sessionCookieName = "session_token"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

// Server holds every component the HTTP layer dispatches to.
type Server struct {
	cfg      config.Config
	router   *gin.Engine
	store    *vstore.Store
	sessions *session.Registry

	vault    *vault.Vault
	entries  *entries.Service
	settings *settings.Service
	backup   *backup.Service
}

// New wires a Server from an already-open store and session registry.
func New(cfg config.Config, store *vstore.Store, sessions *session.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		vault:    vault.New(store, sessions),
		entries:  entries.New(store),
		settings: settings.New(store),
		backup:   backup.New(store),
	}
	s.setupRoutes()
	return s
}

// Run starts the HTTP listener, notifying systemd of readiness first.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	log.Printf("INFO: starting %s on http://%s", s.cfg.AppName, addr)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("WARN: failed to notify systemd of readiness: %v", err)
	} else if sent {
		log.Printf("INFO: notified systemd that service is ready")
	}

	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLoggingMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(securityHeadersMiddleware())
	r.Use(s.corsMiddleware())

	r.GET("/health", s.handleHealth)

	vaultGroup := r.Group("/vault")
	vaultGroup.GET("/status", s.handleVaultStatus)
	vaultGroup.POST("/setup", s.handleVaultSetup)
	vaultGroup.POST("/unlock", s.handleVaultUnlock)
	vaultGroup.POST("/lock", s.requireSession(), s.requireCSRF(), s.handleVaultLock)

	r.GET("/debug/csrf", s.requireSession(), s.handleDebugCSRF)

	entryGroup := r.Group("/entries")
	entryGroup.GET("", s.requireSession(), s.handleEntryList)
	entryGroup.POST("", s.requireSession(), s.requireCSRF(), s.handleEntryCreate)
	entryGroup.GET("/:id", s.requireSession(), s.handleEntryGet)
	entryGroup.PUT("/:id", s.requireSession(), s.requireCSRF(), s.handleEntryUpdate)
	entryGroup.DELETE("/:id", s.requireSession(), s.requireCSRF(), s.handleEntryDelete)

	settingsGroup := r.Group("/settings")
	settingsGroup.GET("", s.requireSession(), s.handleSettingsGet)
	settingsGroup.PUT("", s.requireSession(), s.requireCSRF(), s.handleSettingsPut)

	r.GET("/audit", s.requireSession(), s.handleAuditList)

	backupGroup := r.Group("/backup")
	backupGroup.POST("/export", s.requireSession(), s.requireCSRF(), s.handleBackupExport)
	backupGroup.POST("/import/preview", s.requireSession(), s.requireCSRF(), s.handleBackupImportPreview)
	backupGroup.POST("/import/apply", s.requireSession(), s.requireCSRF(), s.handleBackupImportApply)

	s.router = r
}

func requestLoggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s\" %d %s\n",
			p.ClientIP, p.TimeStamp.Format(time.RFC3339), p.Method, p.Path, p.Request.Proto,
			p.StatusCode, p.Latency)
	})
}

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// corsMiddleware mirrors the teacher's same-origin check: credentials are
// only allowed back to the exact Origin that matches the request Host,
// or to the configured APP_CORS_ALLOWED_ORIGIN.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allow := false
		if origin != "" {
			if s.cfg.CORSAllowedOrigin != "" && origin == s.cfg.CORSAllowedOrigin {
				allow = true
			} else if sameOrigin(origin, c.Request.Host) {
				allow = true
			}
		}
		if allow {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)

		if c.Request.Method == http.MethodOptions {
			if allow {
				c.AbortWithStatus(http.StatusOK)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}
		c.Next()
	}
}

func sameOrigin(origin, host string) bool {
	o := origin
	if i := strings.Index(o, "://"); i >= 0 {
		o = o[i+3:]
	}
	return o == host
}
