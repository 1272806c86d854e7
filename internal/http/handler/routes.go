package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"projectstore/docs"
	"projectstore/internal/health"
	"projectstore/internal/http/middleware"
	"projectstore/internal/service"
)

// Deps are the collaborators the HTTP surface dispatches to.
type Deps struct {
	Projects   service.ProjectService
	Probe      *health.Probe
	Auth       Authenticator
	Reconciler Scanner
	Namespace  NamespaceFunc
	// Gatherer serves /metrics; nil leaves the route out.
	Gatherer         prometheus.Gatherer
	CORSAllowOrigins string
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: they parse input, call a service and map errors.
func RegisterRoutes(app *fiber.App, d Deps) {
	origins := d.CORSAllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + middleware.RequestIDHeader,
		ExposeHeaders: DegradedHeader + ", " + middleware.RequestIDHeader,
	}))

	app.Get("/health", HealthCheck(d.Probe))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	app.Post("/auth/login", Login(d.Auth))

	requireAuth := middleware.RequireAuth(d.Auth, unauthorized)

	projects := app.Group("/projects", requireAuth)
	projects.Get("", ListProjects(d.Projects))
	projects.Post("", CreateProject(d.Projects))
	projects.Get("/:id", GetProject(d.Projects))
	projects.Put("/:id", UpdateProject(d.Projects))
	projects.Delete("/:id", DeleteProject(d.Projects))

	admin := app.Group("/admin", requireAuth)
	admin.Post("/reconcile", Reconcile(d.Reconciler))
	admin.Post("/namespace", EnsureNamespace(d.Namespace))
}
