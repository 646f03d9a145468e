package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/appstate"
	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

// MasterDataCache 共享主数据缓存
type MasterDataCache interface {
	MasterData(ctx context.Context) (*model.MasterData, error)
	Invalidate()
	Age() (time.Duration, bool)
}

// PanelAutomation 后端的面板自动化接口（算法不在本服务）
type PanelAutomation interface {
	AutoAssignPanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error)
	AutoCreatePanels(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error)
}

// UploadLogs 上传记录查询
type UploadLogs interface {
	ListUploadLogs(ctx context.Context, f store.ListFilter) ([]store.UploadLog, error)
	Ping(ctx context.Context) error
}

// Deps 处理器依赖
type Deps struct {
	Master        MasterDataCache
	Panels        PanelAutomation
	Uploads       *importer.Coordinator
	Logs          UploadLogs
	State         *appstate.Manager
	Logger        *slog.Logger
	DefaultFields int
	DefaultPolicy importer.SubmitPolicy
	SessionTTL    time.Duration
	Version       string
}

// Handler API 处理器
type Handler struct {
	master        MasterDataCache
	panels        PanelAutomation
	uploads       *importer.Coordinator
	logs          UploadLogs
	state         *appstate.Manager
	logger        *slog.Logger
	sessions      *sessionStore
	defaultFields int
	defaultPolicy importer.SubmitPolicy
	version       string
	startedAt     time.Time
}

// NewHandler 创建 API 处理器
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.DefaultFields != 4 {
		d.DefaultFields = 3
	}
	if d.DefaultPolicy == "" {
		d.DefaultPolicy = importer.PolicyValidOnly
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = time.Hour
	}
	return &Handler{
		master:        d.Master,
		panels:        d.Panels,
		uploads:       d.Uploads,
		logs:          d.Logs,
		state:         d.State,
		logger:        d.Logger,
		sessions:      newSessionStore(d.SessionTTL),
		defaultFields: d.DefaultFields,
		defaultPolicy: d.DefaultPolicy,
		version:       d.Version,
		startedAt:     time.Now(),
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 主数据
	router.GET("/master-data", h.GetMasterData)
	router.POST("/master-data/invalidate", h.InvalidateMasterData)

	// 级联筛选会话
	router.POST("/filters", h.CreateFilter)
	router.GET("/filters/:id", h.GetFilter)
	router.PATCH("/filters/:id", h.SetFilterField)
	router.POST("/filters/:id/reset", h.ResetFilter)
	router.DELETE("/filters/:id", h.CloseFilter)

	// 模板下载
	router.GET("/templates/:entity", h.DownloadTemplate)

	// 批量上传
	router.GET("/uploads", h.ListUploads)
	router.POST("/uploads/:entity", h.PrepareUpload)
	router.GET("/batches/:id", h.GetBatch)
	router.POST("/batches/:id/submit", h.SubmitBatch)

	// 面板自动化（透传到后端）
	router.POST("/panels/auto-assign", h.AutoAssignPanels)
	router.POST("/panels/auto-create", h.AutoCreatePanels)
}

// Close 关闭所有筛选会话
func (h *Handler) Close() {
	h.sessions.closeAll()
}
