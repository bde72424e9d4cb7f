package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LerianStudio/lib-auth/v2/auth/middleware"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/acserr"
)

const applicationName = "acsd"

// tenantIDLocal is the fiber.Ctx.Locals key the tenant middleware fills.
const tenantIDLocal = "tenant_id"

// defaultCallTimeout bounds a public request that arrives without its
// own deadline hint.
const defaultCallTimeout = 30 * time.Second

// withTenant extracts the tenant id from the X-Tenant-ID header or,
// absent that, the "tenant_id" claim of the bearer token. The claim is
// read unverified — this middleware only routes; token verification is
// the auth middleware's job.
func withTenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get("X-Tenant-ID")

		if tenantID == "" {
			if token := bearerToken(c); token != "" {
				tenantID = tenantFromClaims(token)
			}
		}

		if err := registry.ValidateTenantID(tenantID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"code":    string(acserr.KindUnknownTenant),
				"message": "missing or invalid tenant id",
			})
		}

		c.Locals(tenantIDLocal, tenantID)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), "Bearer", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func tenantFromClaims(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if tenantID, ok := claims[tenantIDLocal].(string); ok {
		return tenantID
	}
	return ""
}

// newPublicApp builds the caller-facing fiber app: one POST route per
// envelope dispatch, guarded by the auth middleware and the tenant
// extractor.
func newPublicApp(svc *RouterService, libLogger libLog.Logger) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024,
	})

	f.Use(recover.New())
	f.Use(cors.New())

	auth := middleware.NewAuthClient(svc.cfg.AuthAddress, svc.cfg.AuthEnabled, &libLogger)

	f.Post("/v1/ops/:op_name",
		auth.Authorize(applicationName, "ops", "post"),
		withTenant(),
		svc.handleExecute,
	)

	f.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return f
}

// handleExecute turns one HTTP request into one Envelope, routes it
// through the Tenant Client, and renders the Reply.
func (svc *RouterService) handleExecute(c *fiber.Ctx) error {
	tenantID := c.Locals(tenantIDLocal).(string)
	opName := c.Params("op_name")

	correlationID := c.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	// A JSON body is tagged with the codec's fallback prefix so the
	// worker-side decoder picks the JSON path; anything else passes
	// through opaque (msgpack by convention).
	payload := append([]byte(nil), c.Body()...)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		payload = append([]byte{0xFF}, payload...)
	}

	env := envelope.Envelope{
		OpName:        opName,
		PayloadBytes:  payload,
		CorrelationID: correlationID,
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), defaultCallTimeout)
	defer cancel()

	reply, err := svc.client.Execute(ctx, tenantID, env)
	if err != nil {
		return renderError(c, correlationID, err)
	}

	return c.Status(statusForReply(reply)).JSON(fiber.Map{
		"success":        reply.Success,
		"result":         reply.ResultBytes,
		"error_message":  reply.ErrorMessage,
		"error_kind":     reply.ErrorKind,
		"correlation_id": reply.CorrelationID,
	})
}

func statusForReply(reply envelope.Reply) int {
	if reply.Success {
		return fiber.StatusOK
	}
	switch acserr.Kind(reply.ErrorKind) {
	case acserr.KindUnknownOp:
		return fiber.StatusNotFound
	case acserr.KindBadPayload:
		return fiber.StatusBadRequest
	case acserr.KindOverloaded:
		return fiber.StatusTooManyRequests
	case acserr.KindCancelled, acserr.KindDeadlineExceeded:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusUnprocessableEntity
	}
}

func renderError(c *fiber.Ctx, correlationID string, err error) error {
	kind := acserr.ClassifyErr(err)

	status := fiber.StatusInternalServerError
	switch kind {
	case acserr.KindUnknownTenant:
		status = fiber.StatusNotFound
	case acserr.KindTenantUnavailable, acserr.KindSpawnFailed:
		status = fiber.StatusServiceUnavailable
	case acserr.KindCircuitOpen:
		status = fiber.StatusServiceUnavailable
	case acserr.KindOverloaded:
		status = fiber.StatusTooManyRequests
	case acserr.KindDeadlineExceeded:
		status = fiber.StatusGatewayTimeout
	case acserr.KindCancelled:
		status = fiber.StatusRequestTimeout
	}

	return c.Status(status).JSON(fiber.Map{
		"code":           string(kind),
		"message":        err.Error(),
		"correlation_id": correlationID,
	})
}

// newControlApp builds the operator-facing control surface the acsctl
// CLI talks to. It is bound to a separate address so network policy can
// keep it off the public edge.
func newControlApp(svc *RouterService) *fiber.App {
	f := fiber.New(fiber.Config{DisableStartupMessage: true})
	f.Use(recover.New())

	f.Post("/control/tenants/:id/start", svc.handleStart)
	f.Post("/control/tenants/:id/stop", svc.handleStop)
	f.Get("/control/tenants", svc.handleList)
	f.Get("/control/tenants/:id", svc.handleHealth)

	return f
}

func (svc *RouterService) handleStart(c *fiber.Ctx) error {
	rec, err := svc.supervisor.Start(c.UserContext(), c.Params("id"))
	if err != nil {
		return renderError(c, "", err)
	}
	return c.JSON(recordView(rec))
}

func (svc *RouterService) handleStop(c *fiber.Ctx) error {
	if err := svc.supervisor.Stop(c.UserContext(), c.Params("id")); err != nil {
		return renderError(c, "", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (svc *RouterService) handleList(c *fiber.Ctx) error {
	recs := svc.supervisor.List()
	out := make([]fiber.Map, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordView(rec))
	}
	return c.JSON(out)
}

func (svc *RouterService) handleHealth(c *fiber.Ctx) error {
	rec, ok := svc.supervisor.Lookup(c.Params("id"))
	if !ok {
		return renderError(c, "", acserr.UnknownTenantError{TenantID: c.Params("id"), Err: errors.New("no record")})
	}
	return c.JSON(recordView(rec))
}

func recordView(rec registry.TenantRecord) fiber.Map {
	return fiber.Map{
		"tenant_id":         rec.TenantID,
		"state":             string(rec.State),
		"pid":               rec.PID,
		"listen_port":       rec.ListenPort,
		"started_at":        rec.StartedAt,
		"last_health_ok_at": rec.LastHealthOKAt,
		"restart_count":     rec.RestartCount,
		"generation":        rec.Generation,
	}
}
