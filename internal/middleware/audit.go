package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"compliancehub/internal/audit"
	"compliancehub/internal/model"
	"compliancehub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxCapturedRequest  = 64 << 10
	maxCapturedResponse = 4 << 10
)

// Tasks runs work after the response has been sent. Each task has its own recover, and
// Wait lets shutdown (and tests) drain what is still running.
type Tasks struct {
	wg  sync.WaitGroup
	log *logrus.Logger
}

func NewTasks(log *logrus.Logger) *Tasks {
	return &Tasks{log: log}
}

func (t *Tasks) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil && t.log != nil {
				t.log.WithField("panic", fmt.Sprint(r)).Error("background task panicked")
			}
		}()
		fn()
	}()
}

func (t *Tasks) Wait() {
	t.wg.Wait()
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if room := maxCapturedResponse - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// RequestAudit writes one audit entry for every request once the handler chain is done,
// whatever the status. Action and resource are derived from method and path. The
// sanitized request body is kept for writes; for 4xx/5xx the error message is kept as
// details.error. The write runs on tasks and cannot change the response.
func RequestAudit(writer *service.AuditWriter, tasks *Tasks, skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		if c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		var reqBody []byte
		if c.Request.Body != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			reqBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedRequest))
			c.Request.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(reqBody), c.Request.Body), c.Request.Body}
		}
		cw := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = cw

		c.Next()

		status := c.Writer.Status()
		details := map[string]any{"durationMs": time.Since(start).Milliseconds()}
		if len(reqBody) > 0 {
			details["body"] = audit.SanitizeBody(reqBody)
		}
		if status >= http.StatusBadRequest {
			details["error"] = errorMessage(cw.body.Bytes())
		}

		entry := &model.AuditLog{
			Method:     c.Request.Method,
			URL:        path,
			StatusCode: status,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Details:    service.DetailsJSON(details),
		}
		if id, ok := CurrentIdentity(c); ok {
			userID, orgID := id.ID, id.OrganizationID
			entry.UserID = &userID
			entry.UserEmail = id.Email
			entry.UserName = id.Name
			entry.OrganizationID = &orgID
		}
		if target := c.Param("id"); target != "" {
			entry.ResourceID = target
		}

		ctx := context.WithoutCancel(c.Request.Context())
		tasks.Go(func() {
			writer.Log(ctx, entry)
		})
	}
}

// errorMessage pulls "error" out of the standard envelope, or falls back to the raw text
func errorMessage(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(body))
}
