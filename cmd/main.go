package main

import (
	"fmt"
	"net/http"
	"time"

	_ "github.com/gatherhq/gather-api/docs" // Import generated docs
	"github.com/gatherhq/gather-api/internal/auth"
	"github.com/gatherhq/gather-api/internal/config"
	"github.com/gatherhq/gather-api/internal/controllers"
	"github.com/gatherhq/gather-api/internal/database"
	"github.com/gatherhq/gather-api/internal/middleware"
	"github.com/gatherhq/gather-api/internal/models"
	"github.com/gatherhq/gather-api/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/swaggo/files"
	"github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

var (
	db            *gorm.DB
	configuration *config.Config

	userService    services.UserService
	sessionService services.SessionService
	patService     services.PatService
	clientService  services.ClientService
	groupService   services.GroupService
	eventService   services.EventService
	badgeService   services.BadgeService

	oauthService *auth.OAuthService
	resolver     *auth.Resolver
	pkceGuard    *auth.PkceGuard
	registry     *auth.ClientRegistry
	signingKeys  *auth.SigningKeys
	idTokens     *auth.IdTokenIssuer

	authController   *controllers.AuthController
	oauthController  *controllers.OAuthController
	clientController *controllers.ClientController
	patController    *controllers.PatController
	groupController  *controllers.GroupController
	eventController  *controllers.EventController
	badgeController  *controllers.BadgeController
)

// @title Gather API
// @version 1.0
// @description Community platform API with OAuth2/OIDC authorization
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a token.
func main() {
	loadDotenvFile()
	setUpLogger()
	configuration = loadConfig()

	setupDatabase(configuration)
	setupServices()
	setupControllers()

	router := setupRouter()

	stopSweeper := registry.StartSweeper(configuration.SweepInterval)
	defer stopSweeper()

	log.Infof("Starting server on %s:%d", configuration.Host, configuration.Port)
	router.Run(fmt.Sprintf("%v:%d", configuration.Host, configuration.Port))
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig loads the application configuration from environment variables
func loadConfig() *config.Config {
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupDatabase initializes the database connection and migrates the schema
func setupDatabase(conf *config.Config) {
	dbConfig, err := database.FromURL(conf.DatabaseURL)
	checkPanicErr(err)

	db, err = database.InitDatabase(dbConfig)
	checkPanicErr(err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PersonalAccessToken{},
		&models.OAuthClient{},
		&models.OAuthClientRecord{},
		&models.OAuthCode{},
		&models.OAuthToken{},
		&models.Group{},
		&models.Event{},
		&models.Badge{},
		&models.UserBadge{},
	)
	checkPanicErr(err)
}

// setupServices wires the service layer and the auth subsystem
func setupServices() {
	userService = services.NewUserService(db)
	sessionService = services.NewSessionService(db)
	patService = services.NewPatService(db)
	clientService = services.NewClientService(db)
	groupService = services.NewGroupService(db)
	eventService = services.NewEventService(db)
	badgeService = services.NewBadgeService(db)

	oauthService = auth.NewOAuthService(db, configuration.JWTSecret)
	resolver = auth.NewResolver(sessionService, patService, userService, oauthService)
	pkceGuard = auth.NewPkceGuard(oauthService.LookupClient)
	registry = auth.NewClientRegistry(db, oauthService)

	signingKeys = auth.LoadSigningKeys(configuration.OIDCSigningJWK)
	if signingKeys == nil {
		log.Warn("No OIDC signing key configured, ID token issuance is disabled")
	}
	idTokens = auth.NewIdTokenIssuer(signingKeys, oauthService, oauthService, userService, badgeService, configuration.IssuerForHost)
}

func setupControllers() {
	authController = controllers.NewAuthController(userService, sessionService, configuration.SessionTTL)
	oauthController = controllers.NewOAuthController(configuration, oauthService, pkceGuard, idTokens, registry, signingKeys, clientService, badgeService)
	clientController = controllers.NewClientController(clientService, registry)
	patController = controllers.NewPatController(patService)
	groupController = controllers.NewGroupController(groupService)
	eventController = controllers.NewEventController(eventService)
	badgeController = controllers.NewBadgeController(badgeService)
}

// setupRouter initializes the Gin router and sets up the routes
func setupRouter() *gin.Engine {
	router := gin.Default()
	setupRoutes(router)
	return router
}

// setupRoutes defines the routes for the Gin router
func setupRoutes(router *gin.Engine) {
	// Credential resolution runs on every request; guards come later per group
	router.Use(middleware.Authenticate(resolver))

	// Health check endpoint
	router.GET("/health", healthCheckHandler)

	// OIDC discovery and key material
	router.GET("/.well-known/openid-configuration", oauthController.Discovery)
	router.GET("/.well-known/jwks.json", oauthController.JWKS)

	// OAuth2 surface
	oauthGroup := router.Group("/oauth")
	{
		oauthGroup.GET("/authorize", oauthController.Authorize)
		oauthGroup.POST("/authorize", oauthController.ApproveAuthorization)
		oauthGroup.POST("/token", oauthController.Token)
		oauthGroup.POST("/register", oauthController.RegisterClient)
		oauthGroup.GET("/userinfo", oauthController.UserInfo)
		oauthGroup.POST("/userinfo", oauthController.UserInfo)
	}

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authController.Signup)
			authGroup.POST("/login", authController.Login)
			authGroup.POST("/logout", authController.Logout)
		}

		protectedApi := v1.Group("/protected")
		protectedApi.Use(middleware.RequireAuth())
		{
			protectedApi.GET("/me", authController.Me)

			// Developer portal: first-party management, session or user scope
			clientsApi := protectedApi.Group("/clients")
			{
				clientsApi.GET("", clientController.ListClients)
				clientsApi.POST("", clientController.CreateClient)
				clientsApi.POST("/:id/secret", clientController.RotateSecret)
				clientsApi.DELETE("/:id", clientController.DeleteClient)
			}

			tokensApi := protectedApi.Group("/tokens")
			{
				tokensApi.GET("", patController.ListTokens)
				tokensApi.POST("", patController.CreateToken)
				tokensApi.DELETE("/:id", patController.RevokeToken)
			}

			groupsApi := protectedApi.Group("/groups")
			{
				groupsApi.GET("", middleware.RequireScope(auth.ScopeReadGroups), groupController.ListGroups)
				groupsApi.GET("/:id", middleware.RequireScope(auth.ScopeReadGroups), groupController.GetGroup)
				groupsApi.POST("", middleware.RequireScope(auth.ScopeManageGroups), groupController.CreateGroup)
				groupsApi.PUT("/:id", middleware.RequireScope(auth.ScopeManageGroups), groupController.UpdateGroup)
				groupsApi.DELETE("/:id", middleware.RequireScope(auth.ScopeManageGroups), groupController.DeleteGroup)
			}

			eventsApi := protectedApi.Group("/events")
			{
				eventsApi.GET("", middleware.RequireScope(auth.ScopeReadEvents), eventController.ListEvents)
				eventsApi.GET("/:id", middleware.RequireScope(auth.ScopeReadEvents), eventController.GetEvent)
				eventsApi.POST("", middleware.RequireScope(auth.ScopeManageEvents), eventController.CreateEvent)
				eventsApi.PUT("/:id", middleware.RequireScope(auth.ScopeManageEvents), eventController.UpdateEvent)
				eventsApi.DELETE("/:id", middleware.RequireScope(auth.ScopeManageEvents), eventController.DeleteEvent)
			}

			badgesApi := protectedApi.Group("/badges")
			{
				badgesApi.GET("", middleware.RequireScope(auth.ScopeReadBadges), badgeController.ListBadges)
				badgesApi.POST("", middleware.RequireScope(auth.ScopeManageBadges), badgeController.CreateBadge)
				badgesApi.POST("/:code/awards", middleware.RequireScope(auth.ScopeManageBadges), badgeController.AwardBadge)
				badgesApi.DELETE("/:code/awards/:user_id", middleware.RequireScope(auth.ScopeManageBadges), badgeController.RevokeBadge)
			}

			adminApi := protectedApi.Group("/admin")
			adminApi.Use(middleware.RequireRole("admin"))
			{
				adminApi.GET("/sweep", sweepHandler)
			}
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// sweepHandler triggers an immediate stale-client sweep
// @Summary Trigger a stale OAuth client sweep
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Router /api/v1/protected/admin/sweep [get]
func sweepHandler(c *gin.Context) {
	removed := registry.Sweep(c.Request.Context(), time.Now())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// healthCheckHandler handles the health check endpoint
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "gather-api",
	})
}
