package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/omnidesk/omnidesk/internal/attachment"
	"github.com/omnidesk/omnidesk/internal/cache"
	"github.com/omnidesk/omnidesk/internal/channel"
	fbadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/facebook"
	tgadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/telegram"
	webadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/web"
	zaloadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/zalo"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/db"
	"github.com/omnidesk/omnidesk/internal/events"
	"github.com/omnidesk/omnidesk/internal/handlers"
	"github.com/omnidesk/omnidesk/internal/healthcheck"
	channelchecker "github.com/omnidesk/omnidesk/internal/healthcheck/checkers/channel"
	depchecker "github.com/omnidesk/omnidesk/internal/healthcheck/checkers/dependency"
	"github.com/omnidesk/omnidesk/internal/jobs"
	"github.com/omnidesk/omnidesk/internal/llm"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/profile"
	"github.com/omnidesk/omnidesk/internal/rag"
	"github.com/omnidesk/omnidesk/internal/realtime"
	"github.com/omnidesk/omnidesk/internal/server"
	"github.com/omnidesk/omnidesk/internal/session"
)

const (
	cacheKeyPrefix = "omnidesk:"
	turnTimeout    = 2 * time.Minute
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, webhook and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			runServe(cfg)
			return nil
		},
	}
}

func runServe(cfg config.Config) {
	fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideDBConn,
			provideRedisClient,
			provideCacheStore,
			provideRateLimiter,
			providePublisher,
			provideGenerator,
			provideEmbedder,
			provideKnowledge,
			provideSessionStore,
			provideHandoff,
			provideTagRepository,
			provideMessageService,
			provideFieldSource,
			provideProfileService,
			provideOrchestrator,
			realtime.NewHub,
			providePageRepository,
			provideDispatcher,
			provideAttachmentStore,
			provideConversationService,
			provideHealthCheckers,
			provideScheduler,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideSocketHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideSettingsHandler),
			provideServerHandler(provideFacebookOAuthHandler),
			provideServerHandler(provideUploadHandler),
			provideServerHandler(provideKnowledgeHandler),
			provideServer,
		),
		fx.Invoke(
			startDispatcher,
			startScheduler,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger() *slog.Logger {
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

// provideRedisClient returns nil when redis is not configured.
func provideRedisClient(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		log.Warn("redis disabled, using in-process cache")
		return nil, nil
	}
	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return client, nil
}

func provideCacheStore(client *redis.Client) cache.Store {
	if client == nil {
		return cache.NewMemoryStore()
	}
	return cache.NewRedisStore(client, cacheKeyPrefix)
}

func provideRateLimiter(log *slog.Logger, cfg config.Config, client *redis.Client) handlers.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if client == nil {
		log.Warn("webhook rate limiting needs redis; disabled")
		return nil
	}
	return cache.NewLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window())
}

func providePublisher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (events.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		return events.NopPublisher{}, nil
	}
	pub, err := events.NewKafkaPublisher(log, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return pub.Close() }})
	return pub, nil
}

func provideGenerator(log *slog.Logger, cfg config.Config) (llm.Generator, error) {
	return llm.NewGenerator(context.Background(), log, cfg.LLM)
}

func provideEmbedder(cfg config.Config) (llm.Embedder, error) {
	return llm.NewEmbedder(cfg.LLM)
}

func provideKnowledge(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, conn *pgxpool.Pool, emb llm.Embedder) (knowledgeBackend, error) {
	kb, err := openKnowledge(cfg, conn, emb)
	if err != nil {
		return knowledgeBackend{}, fmt.Errorf("knowledge backend: %w", err)
	}
	if kb.close != nil {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return kb.close() }})
	}
	log.Info("knowledge backend ready", slog.String("backend", cfg.Knowledge.Backend))
	return kb, nil
}

func provideSessionStore(log *slog.Logger, cfg config.Config, conn *pgxpool.Pool, c cache.Store) *session.Store {
	return session.NewStore(log, session.NewRepository(conn), c, cfg.Cache.SessionTTL())
}

func provideHandoff(log *slog.Logger, cfg config.Config, store *session.Store, c cache.Store) *session.Handoff {
	return session.NewHandoff(log, store, c, cfg.Handoff.PauseDuration(), cfg.Cache.ReplyTTL())
}

func provideTagRepository(conn *pgxpool.Pool) *session.PGTagRepository {
	return session.NewTagRepository(conn)
}

func provideMessageService(log *slog.Logger, conn *pgxpool.Pool) *message.Service {
	return message.NewService(log, message.NewRepository(conn))
}

func provideFieldSource(log *slog.Logger, cfg config.Config, conn *pgxpool.Pool, c cache.Store) *profile.FieldSource {
	return profile.NewFieldSource(log, profile.NewFieldRepository(conn), c, cfg.Cache.FieldTTL())
}

func provideProfileService(log *slog.Logger, cfg config.Config, conn *pgxpool.Pool, fields *profile.FieldSource, messages *message.Service, gen llm.Generator, store *session.Store, pub events.Publisher) *profile.Service {
	return profile.NewService(log, profile.Deps{
		Repo:      profile.NewRepository(conn),
		Fields:    fields,
		History:   messages,
		Generator: gen,
		Alerts:    store,
		Publisher: pub,
		Topics: profile.Topics{
			Profile:   cfg.Kafka.ProfileTopic,
			SheetSync: cfg.Kafka.SheetSyncTopic,
		},
	})
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, gen llm.Generator, emb llm.Embedder, kb knowledgeBackend, fields *profile.FieldSource) *rag.Orchestrator {
	return rag.NewOrchestrator(log, gen, emb, kb.index, fields, cfg.Knowledge.TopK)
}

func providePageRepository(conn *pgxpool.Pool) *fbadapter.PageRepository {
	return fbadapter.NewPageRepository(conn)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, pages *fbadapter.PageRepository) *channel.Dispatcher {
	dispatcher := channel.NewDispatcher(log, channel.NewRegistry())
	dispatcher.RegisterAdapter(webadapter.NewWebAdapter(log))
	dispatcher.RegisterAdapter(fbadapter.NewFacebookAdapter(log, fbadapter.Options{
		GraphBaseURL: cfg.Channels.Facebook.GraphBaseURL,
		Tokens: fbadapter.ChainTokens{
			fbadapter.StaticTokens(cfg.Channels.Facebook.PageTokens()),
			pages,
		},
	}))
	if token := strings.TrimSpace(cfg.Channels.Telegram.BotToken); token != "" {
		dispatcher.RegisterAdapter(tgadapter.NewTelegramAdapter(log, tgadapter.Options{BotToken: token}))
	} else {
		log.Info("telegram channel disabled")
	}
	if token := strings.TrimSpace(cfg.Channels.Zalo.AccessToken); token != "" {
		dispatcher.RegisterAdapter(zaloadapter.NewZaloAdapter(log, zaloadapter.Options{
			BaseURL:     cfg.Channels.Zalo.BaseURL,
			AccessToken: token,
		}))
	} else {
		log.Info("zalo channel disabled")
	}
	return dispatcher
}

func provideAttachmentStore(log *slog.Logger, cfg config.Config) (*attachment.Store, error) {
	return attachment.NewStore(log, cfg.Uploads.Dir, cfg.Uploads.BaseURL)
}

func provideConversationService(log *slog.Logger, cfg config.Config, store *session.Store, handoff *session.Handoff, messages *message.Service, orchestrator *rag.Orchestrator, profiles *profile.Service, hub *realtime.Hub, dispatcher *channel.Dispatcher, attachments *attachment.Store) *conversation.Service {
	svc := conversation.NewService(log, conversation.Deps{
		Sessions:    store,
		Handoff:     handoff,
		Messages:    messages,
		Responder:   orchestrator,
		Profiles:    profiles,
		Fanout:      hub,
		Deliverer:   dispatcher,
		Attachments: attachments,
		BotLabel:    cfg.Handoff.BotLabel,
		OriginURL:   cfg.Web.DefaultOriginURL,
		TaskTimeout: turnTimeout,
	})
	dispatcher.SetProcessor(svc)
	return svc
}

func provideHealthCheckers(log *slog.Logger, conn *pgxpool.Pool, client *redis.Client, kb knowledgeBackend, dispatcher *channel.Dispatcher) []healthcheck.Checker {
	checkers := []healthcheck.Checker{
		depchecker.NewChecker(log, "postgres", conn.Ping, false),
		channelchecker.NewChecker(log, dispatcher.Registry(), dispatcher),
	}
	if client != nil {
		checkers = append(checkers, depchecker.NewChecker(log, "redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, false))
	}
	if kb.ping != nil {
		checkers = append(checkers, depchecker.NewChecker(log, "qdrant", kb.ping, true))
	}
	return checkers
}

func provideScheduler(log *slog.Logger, cfg config.Config, fields *profile.FieldSource, svc *conversation.Service, hub *realtime.Hub) (*jobs.Scheduler, error) {
	s := jobs.NewScheduler(log)
	for _, job := range []jobs.Job{
		jobs.FieldRefreshJob(cfg.Jobs.FieldRefresh, fields),
		jobs.DashboardLogJob(log, cfg.Jobs.DashboardLog, svc, hub),
	} {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func providePingHandler(log *slog.Logger, checkers []healthcheck.Checker) *handlers.PingHandler {
	return handlers.NewPingHandler(log, checkers...)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}
	return handlers.NewAuthHandler(log, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, dispatcher *channel.Dispatcher, limiter handlers.RateLimiter) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, dispatcher, limiter, cfg.Channels.Facebook.VerifyToken)
}

func provideSocketHandler(log *slog.Logger, svc *conversation.Service, hub *realtime.Hub) *handlers.SocketHandler {
	return handlers.NewSocketHandler(log, svc, hub, webadapter.NewWebAdapter(log))
}

func provideChatHandler(log *slog.Logger, svc *conversation.Service) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, svc)
}

func provideSettingsHandler(log *slog.Logger, tags *session.PGTagRepository, fields *profile.FieldSource) *handlers.SettingsHandler {
	return handlers.NewSettingsHandler(log, tags, fields)
}

func provideFacebookOAuthHandler(log *slog.Logger, cfg config.Config, pages *fbadapter.PageRepository, c cache.Store) *handlers.FacebookOAuthHandler {
	fb := cfg.Channels.Facebook
	return handlers.NewFacebookOAuthHandler(log, handlers.NewFacebookOAuthConfig(fb), fb.GraphBaseURL, pages, c)
}

func provideUploadHandler(log *slog.Logger, attachments *attachment.Store) *handlers.UploadHandler {
	return handlers.NewUploadHandler(log, attachment.RoutePrefix, attachments.Dir())
}

func provideKnowledgeHandler(log *slog.Logger, orchestrator *rag.Orchestrator) *handlers.KnowledgeHandler {
	return handlers.NewKnowledgeHandler(log, orchestrator)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) (*server.Server, error) {
	if strings.TrimSpace(params.Config.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Handlers...), nil
}

func startDispatcher(lc fx.Lifecycle, dispatcher *channel.Dispatcher, svc *conversation.Service) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { dispatcher.Start(ctx); return nil },
		OnStop: func(stopCtx context.Context) error {
			cancel()
			err := dispatcher.Shutdown(stopCtx)
			return errors.Join(err, svc.Wait(stopCtx))
		},
	})
}

func startScheduler(lc fx.Lifecycle, s *jobs.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { s.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return s.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, fields *profile.FieldSource) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := fields.Refresh(ctx); err != nil {
				log.Warn("field config warmup failed", slog.Any("error", err))
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
