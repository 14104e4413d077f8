package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/history"
	"signaling-platform/internal/presence"
	"signaling-platform/internal/ws"
	"signaling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, wsHandler *ws.Handler, archive *history.Service, registry presence.Registry, authManager *auth.Manager, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The signaling plane. Auth happens inside the handler from the query
	// token because browser clients cannot set websocket headers.
	r.GET("/ws", wsHandler.Serve)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	{
		v1.GET("/calls/history", func(c *gin.Context) {
			uid, err := auth.UserID(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
			entries, err := archive.ListForUser(c.Request.Context(), uid, limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load call history"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"calls": entries})
		})

		v1.GET("/presence/:user_id", func(c *gin.Context) {
			p, ok, err := registry.Presence(c.Request.Context(), c.Param("user_id"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load presence"})
				return
			}
			if !ok {
				c.JSON(http.StatusOK, gin.H{
					"user_id": c.Param("user_id"),
					"status":  presence.StatusOffline,
				})
				return
			}
			c.JSON(http.StatusOK, p)
		})
	}
}
