package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"firstbuyers/internal/config"
	"firstbuyers/internal/connection"
	"firstbuyers/internal/errors"
	"firstbuyers/internal/logging"
	"firstbuyers/internal/output"
	"firstbuyers/internal/validation"
	"firstbuyers/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// FirstBuyerAnalyzer 首批买家分析
type FirstBuyerAnalyzer interface {
	AnalyzeFirstBuyers(ctx context.Context, contract string, limit int) (*models.ClassificationResult, error)
}

// NodeStatusProvider 节点状态
type NodeStatusProvider interface {
	Status() []connection.NodeStatus
}

// HTTPMetrics 请求指标
type HTTPMetrics interface {
	RecordHTTPRequest(method, route, status string)
}

// Options API服务器依赖，Analyzer 和 Config 必填
type Options struct {
	Analyzer   FirstBuyerAnalyzer
	Config     *config.Config
	Nodes      NodeStatusProvider
	Publisher  output.Publisher
	Metrics    HTTPMetrics
	Gatherer   prometheus.Gatherer
	Exclusions ExclusionStore
	Logger     *logrus.Logger
}

// Server API服务器
type Server struct {
	opts       Options
	validator  *validation.Validator
	logger     *logrus.Logger
	logManager *LogManager
	server     *http.Server
	started    time.Time
}

// NewServer 创建新的API服务器
func NewServer(opts Options) *Server {
	logManager := NewLogManager(1000)
	opts.Logger.AddHook(NewLogHook(logManager))

	analysis := opts.Config.Analysis
	return &Server{
		opts:       opts,
		validator:  validation.NewValidator(opts.Logger, analysis.DefaultLimit, analysis.MaxLimit),
		logger:     opts.Logger,
		logManager: logManager,
		started:    time.Now(),
	}
}

// Handler 构建路由
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(corsMiddleware())
	router.Use(s.requestLogger())
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Config.API.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.opts.Config.API.Port)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接受新请求并等待进行中的请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("API服务器正在关闭")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	gatherer := s.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/tokens/:address/first-buyers", s.getFirstBuyers)

		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		api.GET("/nodes", s.getNodes)

		cm := NewConfigManager(s.opts.Config, s.opts.Exclusions, s.logger)
		api.GET("/config/analysis", cm.GetAnalysisConfig)
		api.POST("/config/excluded-addresses", cm.AddExcludedAddress)
	}
}

// corsMiddleware 跨域设置
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger 记录请求日志和指标
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status))
		}

		logging.ComponentLogger(s.logger, "api").WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"route":    route,
			"status":   status,
			"duration": time.Since(start).String(),
		}).Debug("请求完成")
	}
}

// healthCheck 健康检查，所有节点不可用时返回503
func (s *Server) healthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	var nodes []connection.NodeStatus
	if s.opts.Nodes != nil {
		nodes = s.opts.Nodes.Status()
		if len(nodes) > 0 && !anyAvailable(nodes) {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"service":   "firstbuyers-api",
		"nodes":     nodes,
	})
}

func anyAvailable(nodes []connection.NodeStatus) bool {
	for _, n := range nodes {
		if n.Available {
			return true
		}
	}
	return false
}

// getFirstBuyers 分析代币首批买家
func (s *Server) getFirstBuyers(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.respondError(c, errors.ErrInvalidLimit)
		return
	}
	start, errStart := queryInt(c, "start")
	end, errEnd := queryInt(c, "end")
	if errStart != nil || errEnd != nil {
		s.respondError(c, errors.ErrInvalidWindow)
		return
	}
	if err := s.validator.Window(start, end); err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.opts.Analyzer.AnalyzeFirstBuyers(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(c.Request.Context(), result); err != nil {
			s.logger.WithError(err).WithField("contract", result.Token.Address.Hex()).Warn("发布分析结果失败")
		}
	}

	c.JSON(http.StatusOK, NewFirstBuyersResponse(result, start, end))
}

// queryInt 解析整数查询参数，缺省为0
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// respondError 按错误类型映射HTTP状态码
func (s *Server) respondError(c *gin.Context, err error) {
	code := StatusFor(err)
	body := gin.H{"error": err.Error()}

	var aerr *errors.AnalyzerError
	if errors.As(err, &aerr) {
		body["code"] = aerr.Code
		body["error"] = aerr.Message
	}

	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("分析请求失败")
	}
	c.JSON(code, body)
}

// StatusFor 错误对应的HTTP状态码
func StatusFor(err error) int {
	var aerr *errors.AnalyzerError
	switch {
	case errors.Is(err, errors.ErrInvalidAddress),
		errors.Is(err, errors.ErrInvalidLimit),
		errors.Is(err, errors.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.As(err, &aerr) && aerr.IsFatal():
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// getLogs 获取最近日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)
	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}

// getNodes 获取节点状态
func (s *Server) getNodes(c *gin.Context) {
	if s.opts.Nodes == nil {
		c.JSON(http.StatusOK, gin.H{"nodes": []connection.NodeStatus{}, "total": 0})
		return
	}

	nodes := s.opts.Nodes.Status()
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "total": len(nodes)})
}
