package main

import (
	"context"
	"fmt"
	common_api "go-catalog/internal/common/api"
	"go-catalog/internal/config"
	"go-catalog/internal/database"
	"go-catalog/internal/features/catalog"
	"go-catalog/internal/features/imports"
	"go-catalog/internal/logger"
	"go-catalog/internal/middleware"
	"go-catalog/internal/suggest"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance.
// The body limit sits one megabyte above the upload ceiling so multipart
// framing never trips it; the parser enforces the exact ceiling itself.
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.MaxUploadBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Use custom CORS middleware
	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for i, route := range routes {
		log.Printf("Setting up route %d: %T\n", i+1, route)
		route.Setup(app)
	}
	log.Println("All routes registered successfully")
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
// StartServer now needs Config to know which port to listen on
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	schemaRepo catalog.SchemaRepository,
	recordStore catalog.RecordStore,
	sessionRepo imports.SessionRepository,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Use a background context with timeout for index creation
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := schemaRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure schema indexes: %v", err)
				}
				if err := recordStore.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure record indexes: %v", err)
				}
				if err := sessionRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure session indexes: %v", err)
				}
			}()
			return nil
		},
	})
}

// SeedSchemas installs the built-in catalog schemas before the server
// accepts uploads, so the first import never races the seed.
func SeedSchemas(lc fx.Lifecycle, schemaService catalog.SchemaService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return schemaService.SeedDefaults(seedCtx)
		},
	})
}

// @title           Catalog Import API
// @version         1.0
// @description     Bulk catalog imports with mapping, validation, recovery and live progress over Fiber, Uber Fx and MongoDB.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			catalog.NewSchemaRepository,
			catalog.NewRecordStore,
			imports.NewSessionRepository,

			catalog.NewSchemaService,
			suggest.NewSuggester,
			imports.NewSessionStore,
			imports.NewBroadcaster,
			imports.NewParser,
			imports.NewMapper,
			imports.NewRecovery,
			imports.NewExecutor,
			imports.NewJanitor,
			imports.NewImportService,

			// Initialize Controller
			catalog.NewSchemaController,
			imports.NewImportController,

			// Initialize API Routes
			AsRoute(catalog.NewSchemaApi),
			AsRoute(imports.NewImportApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			SeedSchemas,
			func(lc fx.Lifecycle, janitor *imports.Janitor) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return janitor.Start()
					},
					OnStop: func(ctx context.Context) error {
						return janitor.Stop()
					},
				})
			},
			InitializeIndexes,
		),
	)

	app.Run()
}
