package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cloudsync/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency the service cannot work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RedisPinger adapts a redis client to Pinger.
func RedisPinger(client redis.UniversalClient) Pinger {
	return PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Checks runs named dependency checks.
type Checks map[string]Pinger

// Run pings every dependency concurrently and returns the failures by name.
func (cs Checks) Run(ctx context.Context) map[string]string {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]string)
	)
	for name, p := range cs {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			if err := p.Ping(cctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
		}(name, p)
	}
	wg.Wait()
	return failures
}

type readiness struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

func live(c *gin.Context) {
	response.OK(c, "alive", nil)
}

func ready(checks Checks) gin.HandlerFunc {
	return func(c *gin.Context) {
		failures := checks.Run(c.Request.Context())
		status := make(map[string]string, len(checks))
		for name := range checks {
			status[name] = "ok"
			if msg, failed := failures[name]; failed {
				status[name] = msg
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, response.Envelope{
				Success:   false,
				Message:   "not ready",
				Data:      readiness{Checks: status},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		response.OK(c, "ready", readiness{Ready: true, Checks: status})
	}
}
