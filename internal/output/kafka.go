package output

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"firstbuyers/internal/config"
	"firstbuyers/internal/errors"
	"firstbuyers/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaPublisher 将分析结果发布到Kafka
type KafkaPublisher struct {
	logger   *logrus.Logger
	topic    string
	producer sarama.SyncProducer
	metrics  PublishRecorder
}

// NewKafkaPublisher 创建Kafka输出器
func NewKafkaPublisher(cfg *config.KafkaConfig, metrics PublishRecorder, logger *logrus.Logger) (*KafkaPublisher, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v, topic: %s", cfg.Brokers, cfg.Topic)

	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityHigh,
			errors.CodePublishFailed, "创建Kafka生产者失败").WithComponent("kafka")
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, metrics, logger), nil
}

// NewKafkaPublisherWithProducer 使用已有生产者创建输出器
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, metrics PublishRecorder, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		logger:   logger,
		topic:    topic,
		producer: producer,
		metrics:  metrics,
	}
}

// ProducerConfig 同步生产者配置
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Version = sarama.V2_8_0_0
	return cfg
}

// Publish 发布结果，消息key为小写合约地址，同一合约的结果落在同一分区
func (k *KafkaPublisher) Publish(ctx context.Context, result *models.ClassificationResult) error {
	if result == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		k.record(ResultFailed)
		return fmt.Errorf("序列化结果失败: %w", err)
	}

	contract := strings.ToLower(result.Token.Address.Hex())
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(contract),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		k.record(ResultFailed)
		return errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityMedium,
			errors.CodePublishFailed, "发送消息到Kafka失败").
			WithComponent("kafka").
			WithContract(contract)
	}

	k.record(ResultOK)
	k.logger.WithFields(logrus.Fields{
		"component": "kafka",
		"contract":  contract,
		"topic":     k.topic,
		"partition": partition,
		"offset":    offset,
	}).Info("分析结果已发送到Kafka")
	return nil
}

func (k *KafkaPublisher) record(result string) {
	if k.metrics != nil {
		k.metrics.RecordPublish(result)
	}
}

// Close 关闭Kafka连接
func (k *KafkaPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
