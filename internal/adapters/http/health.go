package http

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
)

// probe reports the state of one dependency. required probes gate readiness.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) (configured bool, err error)
}

func probes(deps *Dependencies) []probe {
	return []probe{
		{"database", true, func(ctx context.Context) (bool, error) {
			if deps.DB == nil {
				return false, nil
			}
			return true, deps.DB.Ping(ctx)
		}},
		{"nats", false, func(ctx context.Context) (bool, error) {
			if deps.NATS == nil {
				return false, nil
			}
			if !deps.NATS.IsConnected() {
				return true, errDisconnected
			}
			return true, nil
		}},
		{"cache", false, func(ctx context.Context) (bool, error) {
			if deps.Cache == nil {
				return false, nil
			}
			return true, deps.Cache.Ping(ctx)
		}},
		{"evaluations", true, func(ctx context.Context) (bool, error) {
			return deps.Evaluations != nil, nil
		}},
	}
}

type probeError string

func (e probeError) Error() string { return string(e) }

const errDisconnected = probeError("disconnected")

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := buildVersion()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// ReadyHandler runs every probe. An unconfigured optional dependency is
// reported but does not fail readiness; a failing configured one does.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	ps := probes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(ps))
		ready := true
		for _, p := range ps {
			configured, err := p.check(ctx)
			switch {
			case !configured:
				checks[p.name] = "not configured"
				if p.required {
					ready = false
				}
			case err != nil:
				checks[p.name] = "error: " + err.Error()
				ready = false
			default:
				checks[p.name] = "ok"
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
