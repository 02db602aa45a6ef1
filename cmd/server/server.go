package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thereayou/classroom-rtc/internal/chat"
	"github.com/thereayou/classroom-rtc/internal/config"
	"github.com/thereayou/classroom-rtc/internal/database"
	"github.com/thereayou/classroom-rtc/internal/handlers"
	"github.com/thereayou/classroom-rtc/internal/meeting"
	"github.com/thereayou/classroom-rtc/internal/middleware"
	"github.com/thereayou/classroom-rtc/internal/presence"
	ws "github.com/thereayou/classroom-rtc/internal/websocket"
	"github.com/thereayou/classroom-rtc/pkg/auth"
)

type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Hub        *ws.Hub

	Tokens   *middleware.TokenResolver
	Chat     *chat.Service
	Receipts *chat.Receipts
	Meetings *meeting.Broker
	Presence *presence.Service
}

// NewServer connects the stores and wires every component. Redis is
// optional; without it tokens cannot be revoked and presence is not
// mirrored.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg.DatabaseURL, cfg.Mode == gin.DebugMode)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connect: %w", err)
		}
	} else {
		log.Warn().Str("module", "server").Msg("REDIS_URL not set, token revocation and presence mirror disabled")
	}

	s := &Server{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		JWTManager: auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Hub:        ws.NewHub(),
	}
	s.Tokens = middleware.NewTokenResolver(s.JWTManager, rdb)
	s.Chat = chat.NewService(db, db, s.Hub, chat.Options{
		PreviewLength: cfg.PreviewLength,
		HistoryLimit:  cfg.HistoryLimit,
	})
	s.Receipts = chat.NewReceipts(db, s.Hub)
	s.Meetings = meeting.NewBroker(db, s.Hub)

	limiter := handlers.NewEventRateLimiter(cfg.EventRateLimit, cfg.EventRateInterval)
	s.Hub.OnDisconnect(func(c *ws.Client, rooms []string) {
		s.Meetings.ConnectionClosed(meeting.Conn{ID: c.ID, UserID: c.UserID, Role: c.Role}, rooms)
		limiter.Forget(c.ID)
	})

	s.Hub.AddPresenceObserver(presence.NewLastSeenRecorder(db))
	var mirror *presence.RedisMirror
	if rdb != nil {
		mirror = presence.NewRedisMirror(rdb)
		if err := mirror.Reset(ctx); err != nil {
			log.Warn().Err(err).Str("module", "server").Msg("reset presence mirror")
		}
		s.Hub.AddPresenceObserver(mirror)
	}
	s.Presence = presence.NewService(s.Hub, db, mirror)

	if cfg.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s.Router = gin.New()
	s.Router.Use(gin.Recovery(), middleware.RequestLogger())

	eventH := handlers.NewEventHandler(s.Hub, s.Chat, s.Receipts, s.Meetings, limiter)
	APIEndpoints(s.Router, s, eventH)

	return s, nil
}

func (s *Server) wsOptions() ws.Options {
	return ws.Options{
		SendBuffer:     s.Config.WSSendBuffer,
		MaxMessageSize: s.Config.WSMaxMessageSize,
		PingPeriod:     s.Config.WSPingPeriod,
	}
}

// Run serves HTTP and the hub loop until ctx is cancelled, then shuts the
// HTTP server down and closes every connection.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Config.Addr(),
		Handler: s.Router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("module", "server").Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "server").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "server").Msg("server forced to shutdown")
		}

		// hijacked websocket connections are not covered by Shutdown
		select {
		case <-s.Hub.Done():
		case <-shutdownCtx.Done():
		}
		return nil
	})

	err := g.Wait()
	log.Info().Str("module", "server").Int("connections", s.Hub.ConnectionCount()).Msg("server exited")
	return err
}

func (s *Server) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Str("module", "server").Msg("close redis")
		}
	}
	if err := s.DB.Close(); err != nil {
		log.Warn().Err(err).Str("module", "server").Msg("close database")
	}
}
