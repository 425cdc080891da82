package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopAcceptingRequests = 10 // 停止接受新请求
	OrderFlushProducers        = 30 // 刷新消息生产者
	OrderCloseConnections      = 40 // 关闭节点/数据库连接
	OrderSaveState             = 50 // 关闭缓存文件
)

// hook 停机处理函数
type hook struct {
	name  string
	order int
	fn    func(ctx context.Context) error
}

// GracefulShutdown 优雅停机管理器
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []hook

	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc

	once sync.Once
	done chan struct{}
	err  error
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数，同一顺序按注册先后执行
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks = append(gs.hooks, hook{name: name, order: order, fn: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 监听 SIGINT/SIGTERM，收到信号后执行停机
func (gs *GracefulShutdown) Start() {
	signal.Notify(gs.signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
			gs.Shutdown()
		case <-gs.done:
		}
		signal.Stop(gs.signals)
	}()
}

// Context 停机完成后取消的上下文
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Wait 阻塞直到停机完成，返回停机过程中的错误
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}

// Shutdown 执行停机，重复调用只执行一次
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		gs.err = gs.run()
		gs.cancel()
		close(gs.done)
	})
	return gs.Wait()
}

func (gs *GracefulShutdown) run() error {
	gs.logger.Info("开始优雅停机流程...")

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.mu.Lock()
	hooks := make([]hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].order < hooks[j].order
	})

	var errs []error
	for _, h := range hooks {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过: %s", h.name)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := h.fn(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", h.name, time.Since(start), err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		gs.logger.Infof("停机处理 '%s' 完成 (耗时: %v)", h.name, time.Since(start))
	}

	if len(errs) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(errs))
		return errors.Join(errs...)
	}
	gs.logger.Info("优雅停机流程完成")
	return nil
}
