package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/handler"
	"jersey-hub/app/logger"
	"jersey-hub/app/middleware"
	"jersey-hub/app/service"
	"jersey-hub/pkg/notify"
	"jersey-hub/pkg/sse"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	hub        *sse.Hub
	notifier   *notify.Service
	syncSvc    *service.SyncService
	taskSvc    *service.ImageTaskService
	generation *service.GenerationService
	transfer   *service.TransferService
	copywriter *service.CopywriterService
	analytics  *service.AnalyticsService
	scheduler  *cron.Cron

	bridgeWg sync.WaitGroup
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	hub := sse.NewHub()
	notifier := notify.New(5 * time.Second)
	transfer := service.NewTransferService(cfg, log)
	syncSvc := service.NewSyncService(cfg, log, hub)
	taskSvc := service.NewImageTaskService(cfg, log, hub, notifier)
	generation := service.NewGenerationService(cfg, log, transfer, hub)
	copywriter := service.NewCopywriterService(context.Background(), cfg, log)
	analytics := service.NewAnalyticsService(cfg, log)

	// 任务状态变化后广播该商品的合并视图
	generation.SetChangeCallback(taskSvc.PublishTasks)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:     cfg,
		Logger:     log,
		hub:        hub,
		notifier:   notifier,
		syncSvc:    syncSvc,
		taskSvc:    taskSvc,
		generation: generation,
		transfer:   transfer,
		copywriter: copywriter,
		analytics:  analytics,
	}

	s.setupRoutes()
	return s
}

// Start 启动服务器和后台服务
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	go s.hub.Run()
	s.notifier.Start()
	s.taskSvc.Start()
	s.generation.Start()

	// 通知桥：本地通知广播到 SSE notices topic
	s.bridgeWg.Add(1)
	go s.noticeBridge()

	if err := s.setupScheduler(); err != nil {
		s.Logger.Errorf("启动定时同步失败: %v", err)
	}

	return s.http.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	s.generation.Stop()
	s.taskSvc.Stop()
	s.notifier.Stop()
	s.bridgeWg.Wait()
	s.hub.Stop()

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// noticeBridge 把通知中心的推送转成 SSE 消息
func (s *Server) noticeBridge() {
	defer s.bridgeWg.Done()

	ch := s.notifier.Subscribe()
	for notice := range ch {
		if payload, err := json.Marshal(notice); err == nil {
			s.hub.PublishTopic(sse.TopicNotices, payload)
		}
	}
}

// setupScheduler 配置了 cron 表达式时启用定时全量同步
func (s *Server) setupScheduler() error {
	schedule := s.Config.Sync.Schedule
	if schedule == "" {
		return nil
	}

	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(schedule, func() {
		s.Logger.Info("⏰ 定时同步触发")
		if _, err := s.syncSvc.FullSync(context.Background(), nil); err != nil {
			s.Logger.Errorf("定时同步失败: %v", err)
		}
		if _, err := s.syncSvc.SyncOrders(context.Background()); err != nil {
			s.Logger.Errorf("定时订单同步失败: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.Logger.Infof("定时同步已启用: %s", schedule)
	return nil
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.Config)
	productHandler := handler.NewProductHandler(s.syncSvc, s.copywriter)
	orderHandler := handler.NewOrderHandler(s.syncSvc)
	taskHandler := handler.NewImageTaskHandler(s.taskSvc, s.transfer, s.notifier)
	syncHandler := handler.NewSyncHandler(s.syncSvc, s.Logger)
	analyticsHandler := handler.NewAnalyticsHandler(s.analytics)
	systemConfigHandler := handler.NewSystemConfigHandler()

	// 生成结果的静态访问
	s.gin.Static("/uploads", s.Config.Storage.UploadDir)

	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// SSE 事件流（EventSource 无法带请求头，令牌走查询参数）
	api.GET("/events", middleware.JWTAuthQuery(s.Config), sse.ServeSSE(s.hub))

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		protected.GET("/me", authHandler.Profile)
		protected.POST("/me/password", authHandler.ChangePassword)

		// 商品主数据
		products := protected.Group("/products")
		{
			products.GET("/", productHandler.List)
			products.GET("/:id", productHandler.Get)
			products.DELETE("/:id", productHandler.Delete)
			products.PUT("/:id/site", productHandler.UpdateSite)
			products.PUT("/:id/images", productHandler.UpdateImages)
			products.POST("/:id/push", productHandler.Push)
			products.POST("/:id/copy", productHandler.GenerateCopy)

			// 图片任务（商品维度）
			products.POST("/:id/tasks", taskHandler.Submit)
			products.GET("/:id/tasks", taskHandler.List)
			products.DELETE("/:id/tasks", taskHandler.Clear)
			products.DELETE("/:id/tasks/:taskId", taskHandler.Delete)
			products.POST("/:id/tasks/:taskId/retry", taskHandler.Retry)
			products.POST("/:id/tasks/:taskId/apply", taskHandler.Apply)
			products.POST("/:id/tasks/:taskId/transfer", taskHandler.TransferTask)
			products.DELETE("/:id/phantoms/:localId", taskHandler.DeletePhantom)
			products.POST("/:id/phantoms/:localId/retry", taskHandler.RetryPhantom)
			products.POST("/:id/transfer", taskHandler.Transfer)
		}

		// 任务全局状态
		tasks := protected.Group("/tasks")
		{
			tasks.GET("/pending", taskHandler.Pending)
		}

		// 通知
		notices := protected.Group("/notices")
		{
			notices.GET("/", taskHandler.Notices)
			notices.DELETE("/:id", taskHandler.DismissNotice)
		}

		// 订单
		orders := protected.Group("/orders")
		{
			orders.GET("/", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
			orders.PUT("/:id/status", orderHandler.UpdateStatus)
			orders.POST("/pull", orderHandler.Pull)
		}

		// 多站点同步
		syncGroup := protected.Group("/sync")
		{
			syncGroup.POST("/start", syncHandler.Start)
			syncGroup.POST("/cancel", syncHandler.Cancel)
			syncGroup.GET("/progress", syncHandler.Progress)
		}

		// 经营数据
		protected.GET("/analytics/report", analyticsHandler.Report)

		// 系统配置
		configGroup := protected.Group("/config")
		{
			configGroup.GET("/categories", systemConfigHandler.GetConfigCategories)
			configGroup.GET("/", systemConfigHandler.List)
			configGroup.POST("/", systemConfigHandler.Upsert)
			configGroup.DELETE("/:id", systemConfigHandler.Delete)
		}
	}
}
