package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"schedle/internal/auth"
	"schedle/internal/blob"
	"schedle/internal/config"
	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/handlers/apiserver"
	appKafka "schedle/internal/kafka"
	"schedle/internal/middleware"
	appRedis "schedle/internal/redis"
	"schedle/internal/services"
	"schedle/internal/storage"
	ws "schedle/internal/websocket"

	"github.com/gorilla/handlers"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(os.Getenv("SCHEDLE_CONFIG"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Printf("%s %s 配置加载成功。", cfg.AppName, cfg.AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 用户目录
	dir, err := buildDirectory(cfg.Directory)
	if err != nil {
		log.Fatalf("无法初始化用户目录: %v", err)
	}
	log.Printf("用户目录已加载 %d 个用户。", len(dir.IDs()))

	// 3. 分区存储与 Token 黑名单
	kv, blacklist, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("无法初始化存储: %v", err)
	}
	defer closeStore()
	parts := storage.NewPartitions(kv, cfg.Storage.KeyPrefix)

	// 4. 事件总线与实时推送
	bus := events.NewBus()
	hub := ws.NewHub()
	go hub.Run(ctx)

	var publisher events.Publisher = bus
	var transport *appKafka.EventTransport
	if cfg.Kafka.Enabled {
		transport, err = buildTransport(cfg.Kafka)
		if err != nil {
			log.Fatalf("无法初始化 Kafka 事件通道: %v", err)
		}
		defer transport.Close()
		publisher = transport
		log.Printf("Kafka 事件通道已启用，topic: %s", cfg.Kafka.EventsTopic)
	}

	// 5. 初始化 Services
	notificationService := services.NewNotificationService(parts, dir, hub)
	bus.Subscribe("notifications", notificationService.HandleEvent)

	friendService := services.NewFriendService(parts, dir, publisher)
	eventService := services.NewEventService(parts, dir, publisher)
	groupService := services.NewGroupService(parts, dir)
	messageService := services.NewMessageService(parts, friendService, dir, hub)
	authService, err := services.NewAuthService(dir, blacklist, cfg)
	if err != nil {
		log.Fatalf("无法初始化认证服务: %v", err)
	}
	sessions := services.NewSessions(dir, parts, friendService, notificationService, eventService)

	avatars, err := buildAvatarStore(ctx, cfg.Avatars)
	if err != nil {
		log.Fatalf("无法初始化头像存储: %v", err)
	}
	userService := services.NewUserService(dir, friendService, authService, avatars)

	// 6. 初始化 Handlers 与路由
	r := apiserver.NewRouter(apiserver.Handlers{
		Auth:          apiserver.NewAuthHandler(authService, sessions),
		User:          apiserver.NewUserHandler(authService, userService),
		Upload:        apiserver.NewUploadHandler(userService, cfg.Avatars),
		Friends:       apiserver.NewFriendRequestHandler(sessions),
		Notifications: apiserver.NewNotificationHandler(sessions),
		Events:        apiserver.NewEventHandler(sessions, eventService),
		Groups:        apiserver.NewGroupHandler(groupService),
		Messages:      apiserver.NewMessageHandler(messageService),
		WebSocket:     apiserver.NewWebSocketHandler(hub, messageService, notificationService, cfg.WebSocket),
	}, middleware.AuthMiddleware(cfg.Auth, blacklist))

	// 本地头像静态文件服务
	if cfg.Avatars.Type == "local" {
		staticPath := strings.TrimSuffix(cfg.Avatars.BaseURL, "/") + "/"
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(cfg.Avatars.LocalPath))))
		log.Printf("提供静态文件服务于 %s -> %s", staticPath, cfg.Avatars.LocalPath)
	}

	// 7. Kafka 消费者把远端事件送入本地总线
	if transport != nil {
		go func() {
			if err := transport.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Kafka 事件消费者错误: %v", err)
			}
			log.Println("Kafka 事件消费者 goroutine 已停止。")
		}()
	}

	// 8. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handlers.CORS(corsOptions...)(r),
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s (storage=%s)", serverAddr, cfg.Storage.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("API 服务器强制关闭: %v", err)
	}
	cancel()

	log.Println("API 服务器已成功关闭")
}

// buildDirectory loads the seed file when one is configured and generates demo users otherwise.
func buildDirectory(cfg config.DirectoryConfig) (*directory.Directory, error) {
	if cfg.SeedFile != "" {
		users, err := directory.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		return directory.New(users...), nil
	}
	return directory.New(directory.Generate(cfg.SeedUsers)...), nil
}

// buildStore picks the partition backend. Redis also backs the token blacklist
// so that logouts survive restarts.
func buildStore(ctx context.Context, cfg config.Config) (storage.KVStore, auth.TokenBlacklist, func(), error) {
	switch cfg.Storage.Type {
	case "", "memory":
		log.Println("使用内存分区存储，重启后数据将丢失。")
		return storage.NewMemoryKV(), auth.NewMemoryBlacklist(), func() {}, nil

	case "redis":
		client, err := appRedis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Println("成功连接到 Redis")
		return appRedis.NewKVStore(client), appRedis.NewRedisTokenBlacklist(client, cfg.Storage.KeyPrefix), func() { client.Close() }, nil

	case "postgres":
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := storage.AutoMigrateTables(db); err != nil {
			return nil, nil, nil, fmt.Errorf("数据库表迁移失败: %w", err)
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return storage.NewGormKV(db), auth.NewMemoryBlacklist(), closeDB, nil
	}
	return nil, nil, nil, fmt.Errorf("不支持的存储类型: %s", cfg.Storage.Type)
}

func buildTransport(cfg config.KafkaConfig) (*appKafka.EventTransport, error) {
	producer, err := appKafka.NewConfluentKafkaProducer(cfg)
	if err != nil {
		return nil, fmt.Errorf("无法创建 Kafka 生产者: %w", err)
	}
	consumer, err := appKafka.NewConfluentKafkaConsumer(cfg)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("无法创建 Kafka 消费者: %w", err)
	}
	return appKafka.NewEventTransport(producer, consumer, cfg), nil
}

func buildAvatarStore(ctx context.Context, cfg config.AvatarConfig) (blob.Store, error) {
	switch cfg.Type {
	case "", "local":
		return storage.NewLocalAvatarStore(cfg)
	case "minio":
		return storage.NewMinioAvatarStore(ctx, cfg.Minio)
	}
	return nil, fmt.Errorf("不支持的头像存储类型: %s", cfg.Type)
}
