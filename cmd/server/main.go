// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/auth"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/cache"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/database"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/handlers"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/middleware"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/roomdir"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/session"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis backs the lobby directory only; without it rooms live in local
	// memory and listings survive on a single process.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("Redis unavailable, room directory running in-memory: %v", err)
	}

	cfg := session.DefaultConfig()
	cfg.RoundSeconds = cache.GetEnvInt("ROUND_SECONDS", cfg.RoundSeconds)
	cfg.TaxRate = cache.GetEnvFloat("TAX_RATE", cfg.TaxRate)
	cfg.GraceDelay = time.Duration(cache.GetEnvInt("GRACE_SECONDS", 10)) * time.Second

	store := database.NewStore()
	engine := session.NewEngine(cfg, store, store, store, logger)

	roomTTL := time.Duration(cache.GetEnvInt("ROOM_TTL_SECONDS", 600)) * time.Second
	rooms := roomdir.New(cache.Rdb, roomTTL, logger)

	gs := handlers.NewGameServer(engine, rooms, logger)

	mux := http.NewServeMux()

	// game websocket
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, gs),
	)))

	// lobby directory endpoints
	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(gs),
	)))
	mux.Handle("/rooms/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(gs),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
