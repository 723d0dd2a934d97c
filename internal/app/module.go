// Package app 提供节点的 fx 依赖注入装配
//
// 🎯 核心职责：
// - 组装基础设施（日志、时钟、badger 存储、事件总线）
// - 组装 C1-C6 各子系统的配置与单例协作者
// - 子系统里按请求/按身份创建的对象（Tracker 以外的一切：Fetcher、
//   ManifestPutter、RequestHandler）不在这里构造——它们的生命周期
//   绑定到具体的一次取/存/服务操作，由调用方在持有这些单例之后显式创建
package app

import (
	"context"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	bucketconfig "github.com/veilnet/node/internal/config/bucket"
	logconfig "github.com/veilnet/node/internal/config/log"
	badgerstoreconfig "github.com/veilnet/node/internal/config/storage/badger"

	cooldownconfig "github.com/veilnet/node/internal/config/cooldown"
	fetchconfig "github.com/veilnet/node/internal/config/fetch"
	insertconfig "github.com/veilnet/node/internal/config/insert"
	serveconfig "github.com/veilnet/node/internal/config/serve"

	bucketimpl "github.com/veilnet/node/internal/core/infrastructure/bucket"
	clockimpl "github.com/veilnet/node/internal/core/infrastructure/clock"
	logimpl "github.com/veilnet/node/internal/core/infrastructure/log"
	badgerstore "github.com/veilnet/node/internal/core/infrastructure/storage/badger"

	"github.com/veilnet/node/internal/core/cooldown"
	"github.com/veilnet/node/internal/core/insert"

	"github.com/veilnet/node/pkg/interfaces/collab"
	ifaceclock "github.com/veilnet/node/pkg/interfaces/infrastructure/clock"
	ifacelog "github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	ifacestorage "github.com/veilnet/node/pkg/interfaces/infrastructure/storage"
)

// ModuleOutput 汇总本模块导出的单例协作者，供其他模块或 cmd/node 使用
type ModuleOutput struct {
	fx.Out

	Logger        ifacelog.Logger
	ZapLogger     *zap.Logger
	Clock         ifaceclock.Clock
	BadgerStore   ifacestorage.BadgerStore
	BucketFactory collab.BucketFactory
	EventBus      evbus.Bus
	EventProducer *insert.BusEventProducer

	CooldownTracker *cooldown.Tracker

	FetchConfig  *fetchconfig.Config
	InsertConfig *insertconfig.Config
	ServeConfig  *serveconfig.Config
}

// provideInfrastructure 构造日志、时钟、存储等基础设施单例
func provideInfrastructure() (ModuleOutput, error) {
	logger, err := logimpl.New(logconfig.New(nil))
	if err != nil {
		return ModuleOutput{}, err
	}

	clk := clockimpl.NewSystemClock()

	store, err := badgerstore.New(badgerstoreconfig.New(nil), logger)
	if err != nil {
		return ModuleOutput{}, err
	}

	buckets, err := bucketimpl.New(bucketconfig.New(nil), logger)
	if err != nil {
		return ModuleOutput{}, err
	}

	bus := evbus.New()
	producer := insert.NewBusEventProducer(bus)

	tracker, err := cooldown.New(cooldownconfig.New(nil), store, clk, logger)
	if err != nil {
		return ModuleOutput{}, err
	}

	var zapLogger *zap.Logger
	if concrete, ok := logger.(*logimpl.Logger); ok {
		zapLogger = concrete.GetZapLogger()
	}

	return ModuleOutput{
		Logger:          logger,
		ZapLogger:       zapLogger,
		Clock:           clk,
		BadgerStore:     store,
		BucketFactory:   buckets,
		EventBus:        bus,
		EventProducer:   producer,
		CooldownTracker: tracker,
		FetchConfig:     fetchconfig.New(nil),
		InsertConfig:    insertconfig.New(nil),
		ServeConfig:     serveconfig.New(nil),
	}, nil
}

// Module 返回节点的根 fx 模块：C1 的单例追踪器，以及每个子系统的配置。
// C2/C3/C4/C5/C6 的具体实例按请求创建，不在依赖图里占位。
func Module() fx.Option {
	return fx.Module("app",
		fx.Provide(provideInfrastructure),

		fx.Invoke(func(lc fx.Lifecycle, store ifacestorage.BadgerStore, logger ifacelog.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					logger.Info("节点基础设施已启动")
					return nil
				},
				OnStop: func(ctx context.Context) error {
					if err := store.Close(); err != nil {
						logger.Warnf("关闭 badger 存储失败: %v", err)
					}
					return logger.Sync()
				},
			})
		}),
	)
}
