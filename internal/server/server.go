package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/purposesproject7/vista-sub001/internal/api"
	"github.com/purposesproject7/vista-sub001/internal/appstate"
	"github.com/purposesproject7/vista-sub001/internal/backend"
	"github.com/purposesproject7/vista-sub001/internal/config"
	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/masterdata"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

// devFrontend 开发模式下前端开发服务器地址
const devFrontend = "http://localhost:5173"

// Server HTTP服务器
type Server struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	router  *gin.Engine
	httpSrv *http.Server

	store   *store.Store
	state   *appstate.Manager
	master  *masterdata.Cache
	backend *backend.Client
	api     *api.Handler
	jobs    *cron.Cron
}

// New 创建服务器并完成依赖装配
func New(cfg *config.AppConfig, logger *slog.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	// 初始化 SQLite Store
	sqliteStore, err := store.New(config.DatabasePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	state, err := appstate.NewManager(dataDir, appstate.Options{Logger: logger})
	if err != nil {
		sqliteStore.Close()
		return nil, err
	}
	if err := state.Load(); err != nil {
		sqliteStore.Close()
		return nil, fmt.Errorf("load admin state: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  sqliteStore,
		state:  state,
	}

	deps := api.Deps{
		Logs:          sqliteStore,
		State:         state,
		Logger:        logger,
		DefaultFields: cfg.Filter.DefaultFields,
		DefaultPolicy: importer.SubmitPolicy(cfg.Upload.DefaultPolicy),
		SessionTTL:    cfg.SessionTTL(),
		Version:       version,
	}

	// 后端未配置时服务仍可用：模板下载、预览可用，提交返回 503
	var creator ingest.BulkCreator = unconfigured{}
	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.BackendTimeout(),
		Logger:  logger,
	})
	switch {
	case err == nil:
		s.backend = client
		s.master = masterdata.New(client, masterdata.Options{
			TTL:    cfg.MasterDataTTL(),
			Logger: logger,
		})
		if err := s.master.StartRefresh(cfg.MasterData.RefreshSchedule); err != nil {
			s.Close()
			return nil, err
		}
		creator = cachingCreator{client: client, cache: s.master}
		deps.Master = s.master
		deps.Panels = client
	case errors.Is(err, backend.ErrNotConfigured):
		logger.Warn("backend base_url not set; master data and submit are unavailable")
	default:
		s.Close()
		return nil, err
	}

	deps.Uploads = importer.NewCoordinator(importer.Options{
		Creator:   creator,
		Log:       sqliteStore,
		FileRules: cfg.UploadRules(),
		BatchTTL:  cfg.BatchTTL(),
		Logger:    logger,
	})
	s.api = api.NewHandler(deps)

	if err := s.startJobs(); err != nil {
		s.Close()
		return nil, err
	}

	s.router = gin.New()
	s.setupRoutes()
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	s.router.Use(requestLogger(s.logger), gin.Recovery(), cors(s.cfg.Server.CORSOrigins))

	apiGroup := s.router.Group("/api")
	{
		s.api.RegisterRoutes(apiGroup)
	}

	if s.cfg.Server.DevMode {
		// 开发模式：页面请求转到前端开发服务器
		s.router.NoRoute(func(c *gin.Context) {
			if isAPIPath(c.Request.URL.Path) {
				notFound(c)
				return
			}
			c.Redirect(http.StatusTemporaryRedirect, devFrontend+c.Request.URL.Path)
		})
		return
	}
	s.router.NoRoute(notFound)
}

func notFound(c *gin.Context) {
	env := model.Fail[any]("route not found")
	env.Error.Code = "not_found"
	c.JSON(http.StatusNotFound, env)
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

// startJobs 定时清理过期的上传记录
func (s *Server) startJobs() error {
	if s.cfg.Data.PruneSchedule == "" || s.cfg.Data.LogRetentionDays <= 0 {
		return nil
	}
	jobs := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := jobs.AddFunc(s.cfg.Data.PruneSchedule, func() {
		if _, err := s.pruneUploadLogs(context.Background()); err != nil {
			s.logger.Warn("prune upload logs failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.cfg.Data.PruneSchedule, err)
	}
	jobs.Start()
	s.jobs = jobs
	return nil
}

func (s *Server) pruneUploadLogs(ctx context.Context) (int64, error) {
	before := time.Now().AddDate(0, 0, -s.cfg.Data.LogRetentionDays)
	n, err := s.store.PruneUploadLogs(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("upload logs pruned", "count", n, "before", before.Format(time.DateOnly))
	}
	return n, nil
}

// Router 路由（用于测试）
func (s *Server) Router() http.Handler {
	return s.router
}

// Backend 后端客户端，未配置时为 nil
func (s *Server) Backend() *backend.Client {
	return s.backend
}

// Run 启动服务器，Shutdown 后返回 nil
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.httpSrv.Addr, "dev", s.cfg.Server.DevMode)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收请求，等待处理中的请求结束，然后释放资源
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close 停止后台任务并持久化状态
func (s *Server) Close() error {
	if s.jobs != nil {
		<-s.jobs.Stop().Done()
		s.jobs = nil
	}
	if s.master != nil {
		s.master.Stop()
	}
	if s.api != nil {
		s.api.Close()
	}

	var errs []error
	if s.state != nil {
		if err := s.state.SaveNow(); err != nil {
			errs = append(errs, fmt.Errorf("save admin state: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
		s.store = nil
	}
	return errors.Join(errs...)
}

// unconfigured 后端未配置时的提交目标
type unconfigured struct{}

func (unconfigured) BulkCreate(ctx context.Context, entity string, records []map[string]any) (model.SubmitResult, error) {
	return model.SubmitResult{}, backend.ErrNotConfigured
}

// cachingCreator 批量写入后让主数据缓存失效
type cachingCreator struct {
	client *backend.Client
	cache  *masterdata.Cache
}

func (c cachingCreator) BulkCreate(ctx context.Context, entity string, records []map[string]any) (model.SubmitResult, error) {
	result, err := c.client.BulkCreate(ctx, entity, records)
	if err == nil && result.Created > 0 {
		c.cache.Invalidate()
	}
	return result, err
}
