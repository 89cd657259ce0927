package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/procureflow/backend/internal/application/services"
	"github.com/procureflow/backend/internal/bootstrap"
	"github.com/procureflow/backend/internal/infrastructure/database"
	"github.com/procureflow/backend/internal/interfaces/middleware"
	"github.com/procureflow/backend/internal/interfaces/rest"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	// Initialize database connection
	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Schema first, then catalogs, then the admin account
	if err := bootstrap.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	if err := bootstrap.InitializeReferenceData(db); err != nil {
		log.Fatalf("Failed to initialize reference data: %v", err)
	}
	if err := bootstrap.InitializeSystemData(db); err != nil {
		log.Fatalf("Failed to initialize system data: %v", err)
	}

	// Initialize service manager
	svcMgr := services.NewServiceManager(db)
	log.Println("🔧 Service manager initialized")

	// Create Gin router
	router := gin.Default()
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Initialize handlers
	authHandler := rest.NewAuthHandler(svcMgr.Auth)
	templateHandler := rest.NewTemplateHandler(svcMgr.Templates)
	approvalHandler := rest.NewApprovalHandler(svcMgr.Submission, svcMgr.Decisions, svcMgr.Audit)
	adminHandler := rest.NewAdminHandler(svcMgr.Templates, svcMgr.Escalation)

	// Initialize middleware
	requireAuth := middleware.RequireAuth()
	requireAdmin := middleware.RequireAdmin()

	// API routes
	api := router.Group("/api")
	{
		// Public Auth routes (no authentication required)
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", requireAuth, authHandler.GetMe)
			auth.POST("/register", requireAuth, requireAdmin, authHandler.Register)
			auth.GET("/users", requireAuth, authHandler.GetUsers)
		}

		// Workflow authoring routes (admin only)
		workflows := api.Group("/workflows")
		workflows.Use(requireAuth, requireAdmin)
		{
			workflows.POST("/templates", templateHandler.CreateTemplate)
			workflows.GET("/templates", templateHandler.ListTemplates)
			workflows.GET("/templates/:id", templateHandler.GetTemplate)
			workflows.POST("/templates/:id/stages", templateHandler.AddStage)
			workflows.PUT("/templates/:id/activate", templateHandler.Activate)
			workflows.POST("/stages/:stageId/steps", templateHandler.AddStep)
		}

		// Approval runtime routes
		approvals := api.Group("/approvals")
		approvals.Use(requireAuth)
		{
			approvals.POST("/submit", approvalHandler.Submit)
			approvals.GET("/pending", approvalHandler.GetPending)
			approvals.GET("/dashboard", approvalHandler.GetDashboard)
			approvals.GET("/instances/:id", approvalHandler.GetInstance)
			approvals.GET("/instances/:id/progress", approvalHandler.GetProgress)
			approvals.GET("/instances/:id/history", approvalHandler.GetHistory)
			approvals.GET("/requests/:requestId", approvalHandler.GetInstanceByRequest)
			approvals.POST("/actions/:actionId/decide", approvalHandler.Decide)
		}

		// Admin routes (system admin only)
		admin := api.Group("/admin")
		admin.Use(requireAuth, requireAdmin)
		{
			admin.GET("/references/:listType", adminHandler.GetReferenceList)
			admin.POST("/sweep", adminHandler.TriggerSweep)
		}
	}

	// Start escalation sweeper
	svcMgr.StartSweeper()
	log.Println("⏰ Escalation sweeper started")

	log.Println("\n═══════════════════════════════════════════════════════════════════════════")
	log.Println("🚀 ProcureFlow Approval Backend Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:         http://localhost:%s", port)
	log.Printf("🔐 Auth API:       http://localhost:%s/api/auth", port)
	log.Printf("📋 Workflow API:   http://localhost:%s/api/workflows", port)
	log.Printf("✅ Approval API:   http://localhost:%s/api/approvals", port)
	log.Printf("💚 Health check:   http://localhost:%s/health\n", port)

	// Create HTTP Server
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.StopSweeper()
	log.Println("🛑 Escalation sweeper stopped")

	// The context gives in-flight requests 5 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
