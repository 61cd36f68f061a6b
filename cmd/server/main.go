// Command server is the entry point for the Vivaha backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vivaha/internal/bootstrap"
	"vivaha/internal/cache"
	"vivaha/internal/server"

	"github.com/gofiber/fiber/v2"
)

func main() {
	rt, err := bootstrap.InitRuntime()
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	cache.InitRedis(rt.Config.RedisURL)

	srv, err := server.NewServerWithDeps(rt.Config, rt.DB, cache.GetClient())
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:   "Vivaha API",
		BodyLimit: 10 * 1024 * 1024, // 10MB limit
	})

	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)
	srv.StartBackground()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server resource shutdown error: %v", err)
		}
		if rt.TracingShutdown != nil {
			if err := rt.TracingShutdown(ctx); err != nil {
				log.Printf("Tracing shutdown error: %v", err)
			}
		}
	}()

	log.Printf("Server starting on port %s...", rt.Config.Port)
	log.Fatal(app.Listen(":" + rt.Config.Port))
}
