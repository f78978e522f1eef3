package health

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/Jamolkhon5/aistudio/internal/handler"
)

const checkTimeout = 5 * time.Second

// Check проверяет одну зависимость. nil - зависимость доступна.
type Check func(ctx context.Context) error

// Checker периодически опрашивает зависимости и публикует результат
// через gRPC health-сервис и HTTP /healthz.
type Checker struct {
	server *health.Server
	checks map[string]Check

	mu      sync.RWMutex
	results map[string]error
	checked bool
}

func NewChecker(checks map[string]Check) *Checker {
	return &Checker{
		server:  health.NewServer(),
		checks:  checks,
		results: make(map[string]error, len(checks)),
	}
}

// Server - gRPC health-сервис для регистрации в grpc.Server.
func (c *Checker) Server() healthpb.HealthServer {
	return c.server
}

// Check опрашивает все зависимости один раз. Общий статус ("") - SERVING,
// только если доступны все.
func (c *Checker) Check(ctx context.Context) map[string]error {
	results := make(map[string]error, len(c.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := check(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := healthpb.HealthCheckResponse_SERVING
	for name, err := range results {
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			log.Printf("WARN: [Health] %s: %v", name, err)
		}
		c.server.SetServingStatus(name, status)
	}
	c.server.SetServingStatus("", overall)

	c.mu.Lock()
	c.results = results
	c.checked = true
	c.mu.Unlock()
	return results
}

// Run проверяет зависимости каждые interval до отмены ctx.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ServeHTTP отдает последний результат проверки; до первой проверки опрашивает сразу.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	results, checked := c.results, c.checked
	c.mu.RUnlock()
	if !checked {
		results = c.Check(r.Context())
	}

	rep := report{Status: "ok", Checks: make(map[string]string, len(results))}
	status := http.StatusOK
	for name, err := range results {
		if err != nil {
			rep.Checks[name] = err.Error()
			rep.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[name] = "ok"
	}
	api.WriteJSON(w, status, rep)
}
