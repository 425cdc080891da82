package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"firstbuyers/internal/config"
	"firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/sirupsen/logrus"
)

// 发布结果标签
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Publisher 分析结果输出接口
type Publisher interface {
	Publish(ctx context.Context, result *models.ClassificationResult) error
	Close() error
}

// PublishRecorder 发布指标
type PublishRecorder interface {
	RecordPublish(result string)
}

// NewPublisher 按配置创建输出器，目录和Kafka都未配置时返回nil
func NewPublisher(cfg *config.OutputConfig, metrics PublishRecorder, logger *logrus.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, nil
	}

	var publishers []Publisher
	if cfg.Directory != "" {
		file, err := NewFileOutput(cfg.Directory, logger)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, file)
	}
	if cfg.Kafka != nil && cfg.Kafka.Enabled {
		kafka, err := NewKafkaPublisher(cfg.Kafka, metrics, logger)
		if err != nil {
			closeAll(publishers)
			return nil, err
		}
		publishers = append(publishers, kafka)
	}

	switch len(publishers) {
	case 0:
		return nil, nil
	case 1:
		return publishers[0], nil
	default:
		return NewMultiPublisher(logger, publishers...), nil
	}
}

// FileOutput 将结果写入JSON文件，每个合约一个文件
type FileOutput struct {
	outputDir string
	logger    *logrus.Logger
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputDir string, logger *logrus.Logger) (*FileOutput, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	return &FileOutput{outputDir: outputDir, logger: logger}, nil
}

// Path 返回合约结果文件路径
func (o *FileOutput) Path(contract string) string {
	return filepath.Join(o.outputDir, strings.ToLower(contract)+".json")
}

// Publish 写入结果文件，先写临时文件再重命名
func (o *FileOutput) Publish(ctx context.Context, result *models.ClassificationResult) error {
	if result == nil {
		return nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}

	path := o.Path(result.Token.Address.Hex())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入结果文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("重命名结果文件失败: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"component": "file_output",
		"contract":  result.Token.Address.Hex(),
		"path":      path,
	}).Debug("结果已写入文件")
	return nil
}

// Close 文件输出器无需关闭
func (o *FileOutput) Close() error {
	return nil
}

// MultiPublisher 依次发布到多个输出器，单个失败不影响其他输出器
type MultiPublisher struct {
	publishers []Publisher
	logger     *logrus.Logger
}

// NewMultiPublisher 创建组合输出器
func NewMultiPublisher(logger *logrus.Logger, publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers, logger: logger}
}

// Publish 发布到全部输出器，返回第一个错误
func (m *MultiPublisher) Publish(ctx context.Context, result *models.ClassificationResult) error {
	var first error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, result); err != nil {
			m.logger.WithError(err).WithField("code", errors.CodePublishFailed).Warn("输出结果失败")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close 关闭全部输出器
func (m *MultiPublisher) Close() error {
	return closeAll(m.publishers)
}

func closeAll(publishers []Publisher) error {
	var first error
	for _, p := range publishers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
