package api

import (
	"net/http"

	"firstbuyers/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ExclusionStore 排除地址持久化
type ExclusionStore interface {
	AddExcludedAddress(address, label string) error
}

// ConfigManager 配置管理接口
type ConfigManager struct {
	cfg    *config.Config
	store  ExclusionStore
	logger *logrus.Logger
}

// NewConfigManager 创建配置管理器，store 为nil时只读
func NewConfigManager(cfg *config.Config, store ExclusionStore, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// GetAnalysisConfig 获取当前分析参数
func (cm *ConfigManager) GetAnalysisConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"analysis": cm.cfg.Analysis,
	})
}

// AddExcludedAddress 新增排除地址，写入数据库后在下次启动时生效
func (cm *ConfigManager) AddExcludedAddress(c *gin.Context) {
	if cm.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "未配置数据库，无法保存排除地址",
		})
		return
	}

	var req struct {
		Address string `json:"address" binding:"required"`
		Label   string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "地址格式无效",
		})
		return
	}

	if err := cm.store.AddExcludedAddress(req.Address, req.Label); err != nil {
		cm.logger.WithError(err).WithField("address", req.Address).Error("保存排除地址失败")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "保存排除地址失败",
			"message": err.Error(),
		})
		return
	}

	cm.logger.WithField("address", req.Address).Info("已新增排除地址")
	c.JSON(http.StatusCreated, gin.H{
		"message": "排除地址已保存，重启后生效",
		"address": common.HexToAddress(req.Address).Hex(),
	})
}
