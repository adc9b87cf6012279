package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/events"
)

// MsgNoIP is returned by /get-ip when the caller address is unknown.
const MsgNoIP = "Unable to retrieve IP"

// checkRequest is the JSON body of the check endpoints. Port may be a
// number or a numeric string.
type checkRequest struct {
	Host string          `json:"host"`
	Port json.RawMessage `json:"port"`
	Via  string          `json:"via"`
}

func (r checkRequest) port() (int, error) {
	raw := bytes.TrimSpace(r.Port)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("port must be a number: %w", err)
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("port must be a number: %w", err)
	}
	return n, nil
}

func (s *Server) checkHandler(kind events.CheckKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body checkRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, checker.Result{Message: checker.MsgInvalidParameters})
			return
		}
		port, err := body.port()
		if err != nil {
			c.JSON(http.StatusBadRequest, checker.Result{Message: checker.MsgInvalidParameters})
			return
		}

		req := checker.Request{
			Host: strings.TrimSpace(body.Host),
			Port: port,
			Via:  body.Via,
			From: s.callerIP(c),
		}

		result := s.runner.Run(c.Request.Context(), kind, req)
		status := result.Status
		if status == 0 {
			status = http.StatusOK
		}
		c.JSON(status, result)
	}
}

// callerIP prefers the configured proxy header over the socket address.
func (s *Server) callerIP(c *gin.Context) string {
	if s.cfg.ProxyHeader != "" {
		if ip := strings.TrimSpace(c.GetHeader(s.cfg.ProxyHeader)); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}

// handleGetIP echoes the caller address taken from the proxy header.
func (s *Server) handleGetIP(c *gin.Context) {
	if s.cfg.ProxyHeader == "" {
		c.String(http.StatusBadRequest, MsgNoIP)
		return
	}
	ip := strings.TrimSpace(c.GetHeader(s.cfg.ProxyHeader))
	if ip == "" {
		c.String(http.StatusOK, MsgNoIP)
		return
	}
	c.String(http.StatusOK, ip)
}
