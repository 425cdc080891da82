package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/cache.db"

	// 存储桶名称
	SignalBucket   = "signals"
	MetadataBucket = "metadata"
)

// entry 缓存条目
type entry struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// BoltStore 基于BoltDB的键值缓存，条目按TTL过期
type BoltStore struct {
	db     *bolt.DB
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewBoltStore 打开缓存数据库，ttl<=0 表示永不过期
func NewBoltStore(dbPath string, ttl time.Duration, logger *logrus.Logger) (*BoltStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开缓存数据库失败: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{SignalBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("缓存已初始化，数据库路径: %s", dbPath)
	return &BoltStore{
		db:     db,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get 读取缓存并解码到 out，未命中或已过期返回 false
func (s *BoltStore) Get(bucket, key string, out interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("存储桶不存在: %s", bucket)
		}
		if data := b.Get([]byte(key)); data != nil {
			// bolt返回的切片只在事务内有效
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return false, fmt.Errorf("解码缓存条目失败: %w", err)
	}
	if s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl {
		return false, nil
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		return false, fmt.Errorf("解码缓存值失败: %w", err)
	}
	return true, nil
}

// Put 写入缓存
func (s *BoltStore) Put(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("编码缓存值失败: %w", err)
	}
	raw, err := json.Marshal(entry{StoredAt: s.now(), Value: data})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("存储桶不存在: %s", bucket)
		}
		return b.Put([]byte(key), raw)
	})
}

// Prune 删除过期条目，返回删除数量
func (s *BoltStore) Prune() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{SignalBucket, MetadataBucket} {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}

			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var e entry
				if err := json.Unmarshal(v, &e); err != nil || s.now().Sub(e.StoredAt) > s.ttl {
					expired = append(expired, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(expired)
		}
		return nil
	})
	return removed, err
}

// Close 关闭缓存数据库
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
