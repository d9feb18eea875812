package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"waypoint/internal/agents"
	"waypoint/internal/clock"
	"waypoint/internal/orchestrator"
)

const deciderKey = "decided_by"

// decisionRequest is the optional body of approve/decline/execute.
type decisionRequest struct {
	DecidedBy string `json:"decided_by"`
}

// decider resolves who is acting on an action. With a JWT secret the
// token subject is used and the body is ignored; without one the caller
// names itself in the body.
func (s *Server) decider() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtSecret != nil {
			sub, err := s.tokenSubject(c.GetHeader("Authorization"))
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				c.Abort()
				return
			}
			c.Set(deciderKey, sub)
			c.Next()
			return
		}

		var req decisionRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				c.Abort()
				return
			}
		}
		c.Set(deciderKey, strings.TrimSpace(req.DecidedBy))
		c.Next()
	}
}

func (s *Server) tokenSubject(header string) (string, error) {
	if header == "" {
		return "", errors.New("Authorization header required")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("Invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("Invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, agents.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrExecutionInProgress),
		errors.Is(err, clock.ErrTickInProgress),
		errors.Is(err, clock.ErrAlreadyRunning),
		errors.Is(err, clock.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrMissingDecider):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
