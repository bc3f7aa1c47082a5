package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/zuhreplanet/sohbet/internal/auth"
	"github.com/zuhreplanet/sohbet/internal/chat"
	"github.com/zuhreplanet/sohbet/internal/db"
	"github.com/zuhreplanet/sohbet/internal/handlers"
	"github.com/zuhreplanet/sohbet/internal/moderation"
	"github.com/zuhreplanet/sohbet/internal/push"
	"github.com/zuhreplanet/sohbet/internal/reputation"
	"github.com/zuhreplanet/sohbet/internal/store"
	"github.com/zuhreplanet/sohbet/internal/ws"
	"github.com/zuhreplanet/sohbet/pkg/config"
	"github.com/zuhreplanet/sohbet/pkg/i18n"
)

var __ = i18n.Translate

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("rate limiter error")})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": __("rate limit exceeded")})
			c.Abort()
			return
		}

		c.Next()
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func serverErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &responseBodyWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Printf(
				"HTTP %d %s %s ip=%s duration=%s errors=%q response=%q",
				c.Writer.Status(),
				c.Request.Method,
				c.Request.URL.Path,
				c.ClientIP(),
				time.Since(start).Truncate(time.Millisecond),
				c.Errors.ByType(gin.ErrorTypeAny).String(),
				strings.TrimSpace(blw.body.String()),
			)
		}
	}
}

func panicRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Printf(
			"panic recovered method=%s path=%s ip=%s error=%v\n%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			recovered,
			debug.Stack(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
	})
}

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func runCommand(cfg *config.Config, args []string) error {
	command := args[0]

	switch command {
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "sweep":
		return runSweep(cfg, os.Stdout, args[1:])
	case "promote":
		return runPromote(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  sohbet                      Start the API server")
	fmt.Fprintln(out, "  sohbet status [--json]      Show application statistics")
	fmt.Fprintln(out, "  sohbet sweep [--dry-run]    Soft-delete expired disappearing messages")
	fmt.Fprintln(out, "  sohbet promote <username>   Grant a user the admin role")
}

// newModerationFilter loads the operator rule file when one is
// configured; a broken file falls back to the built-in rules so the
// server never starts without moderation.
func newModerationFilter(cfg *config.Config) *moderation.Filter {
	if cfg.ModerationRules == "" {
		return moderation.NewFilter()
	}
	rules, err := moderation.LoadRules(cfg.ModerationRules)
	if err != nil {
		log.Printf("moderation: %v, falling back to built-in rules", err)
		return moderation.NewFilter()
	}
	log.Printf("moderation: loaded %d block / %d warn terms from %s",
		len(rules.BlockedTerms), len(rules.WarnTerms), cfg.ModerationRules)
	return moderation.NewFilterWithRules(rules)
}

func runServer(cfg *config.Config) error {
	os.MkdirAll(cfg.FileStoragePath, 0755)

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	conn := database.GetConn()

	// Services
	authSvc := auth.New(conn, cfg.JWTSecret)
	st := store.New(conn)
	chatSvc := chat.NewService(st, newModerationFilter(cfg), reputation.New(conn), cfg.XPPerMessage)
	notifier := push.NewNotifier(conn, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if notifier == nil {
		log.Println("push: VAPID keys not configured, web push disabled")
	}

	hub := ws.NewHub(chatSvc, notifier)
	go hub.Run()

	// Handlers
	authHandler := handlers.NewAuthHandler(authSvc)
	chatHandler := handlers.NewChatHandler(chatSvc, st, hub, notifier)
	userHandler := handlers.NewUserHandler(st, hub, cfg.FileStoragePath, cfg.MaxUploadSize)
	pushHandler := handlers.NewPushHandler(conn, notifier)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(serverErrorLogger())
	router.Use(gin.Logger())
	router.Use(panicRecovery())
	router.MaxMultipartMemory = cfg.MaxUploadSize

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Public endpoints
	api := router.Group("/api")
	{
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})

		api.POST("/auth/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		api.POST("/auth/login", rateLimitMiddleware(loginLimiter), authHandler.Login)

		api.GET("/users/:username", userHandler.GetUserProfile)
	}

	// Protected endpoints
	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		sendLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 30})

		// Conversations and messages
		protected.POST("/conversations", chatHandler.CreateConversation)
		protected.GET("/conversations", chatHandler.GetConversations)
		protected.GET("/conversations/:id/messages", chatHandler.GetMessages)
		protected.POST("/conversations/:id/messages", rateLimitMiddleware(sendLimiter), chatHandler.SendMessage)
		protected.PUT("/conversations/:id/read", chatHandler.MarkAsRead)
		protected.PUT("/conversations/:id/timer", chatHandler.SetTimer)
		protected.DELETE("/messages/:id", chatHandler.DeleteMessage)

		// Users and profile
		protected.GET("/users", userHandler.GetUsers)
		protected.GET("/profile", userHandler.GetMyProfile)
		protected.PUT("/profile", userHandler.UpdateProfile)
		protected.POST("/profile/avatar", userHandler.UploadAvatar)

		// Media
		protected.POST("/upload", userHandler.UploadFile)

		// Web push
		protected.POST("/push/subscribe", pushHandler.Subscribe)
		protected.DELETE("/push/subscribe", pushHandler.Unsubscribe)
		protected.GET("/push/vapid-key", pushHandler.VAPIDKey)
	}

	// Admin endpoints
	admin := protected.Group("/admin")
	admin.Use(authHandler.AdminMiddleware())
	{
		admin.GET("/messages/flagged", chatHandler.GetFlaggedMessages)
	}

	// Serve uploaded files from configured storage path
	router.Static("/api/files", cfg.FileStoragePath)

	// WebSocket endpoint
	router.GET("/ws", authHandler.AuthMiddleware(), hub.HandleWebSocket)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	log.Printf("Starting server on %s", addr)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigint
		log.Println("\nShutting down gracefully...")
		os.Exit(0)
	}()

	if err := router.Run(addr); err != nil {
		return err
	}

	return nil
}
