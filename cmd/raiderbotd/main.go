package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	adaptermemory "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/adapter/memory"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/adapter/warehouse"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/adapter/webhook"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/api"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/audit"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/auth"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/config"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/decision"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/intent"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/job"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/knowledge"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/observability/metrics"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/orchestrator"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/pipeline"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/plan"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/plugin"
)

// main 是 RaiderBot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("raiderbotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("RAIDERBOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "raiderbot.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    true,
			Path:       filepath.Join(cfg.Logging.AuditDir, "audit.log"),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 知识库存储。
	var knowledgeStore knowledge.Store
	switch cfg.Storage.Knowledge.Driver {
	case "", "memory":
		store, err := knowledge.NewMemoryStore(cfg.Runtime.DataDir)
		if err != nil {
			return err
		}
		knowledgeStore = store
	case "mysql":
		store, err := knowledge.NewMySQLStore(ctx, knowledge.MySQLConfig{DSN: cfg.Storage.Knowledge.DSN})
		if err != nil {
			return err
		}
		knowledgeStore = store
	default:
		return fmt.Errorf("未知的知识库驱动: %s", cfg.Storage.Knowledge.Driver)
	}
	defer func() {
		_ = knowledgeStore.Close()
	}()

	// 作业存储。
	var jobStore job.Store
	switch cfg.Storage.Jobs.Driver {
	case "", "memory":
		jobStore = job.NewMemoryStore()
	case "mysql":
		store, err := job.NewMySQLStore(cfg.Storage.Jobs.DSN)
		if err != nil {
			return err
		}
		jobStore = store
	default:
		return fmt.Errorf("未知的作业存储驱动: %s", cfg.Storage.Jobs.Driver)
	}
	defer func() {
		_ = jobStore.Close()
	}()

	// 作业队列。
	var jobQueue job.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		jobQueue = job.NewMemoryQueue(cfg.Queue.Buffer)
	case "redis":
		queue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	case "rabbitmq":
		queue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		jobQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			log.Printf("关闭作业队列失败: %v", err)
		}
	}()

	// 审计投递渠道。
	sinks := []audit.Sink{audit.NewLogSink()}
	if cfg.Audit.SlackWebhookURL != "" {
		sender, err := webhook.New(webhook.Config{URL: cfg.Audit.SlackWebhookURL})
		if err != nil {
			return err
		}
		sinks = append(sinks, &audit.SlackSink{Sender: sender, Channel: cfg.Audit.SlackChannel})
	}
	auditor := audit.NewFanout(sinks...)

	// 能力适配器。
	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := decision.NewEngine(intent.NewClassifier(), intent.NewScorer())
	if err != nil {
		return err
	}
	planner, err := plan.NewPlanner()
	if err != nil {
		return err
	}
	executor := pipeline.NewExecutor(registry, knowledgeStore,
		pipeline.WithAuditor(auditor),
		pipeline.WithStepTimeout(time.Duration(cfg.Pipeline.StepTimeoutSeconds)*time.Second),
	)

	orch, err := orchestrator.NewService(engine, capability.NewResolver(), planner, executor, knowledgeStore,
		orchestrator.WithAuditor(auditor),
	)
	if err != nil {
		return err
	}

	jobService := job.NewService(jobStore, jobQueue, cfg.Runtime.MaxRetries)
	processor := job.NewProcessor(orch, jobStore, jobQueue, jobQueue,
		job.WithWorkerCount(cfg.Runtime.Workers),
		job.WithAuditDispatcher(auditor),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("作业处理器异常退出: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	authSvc, err := auth.NewService(auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		Keys: convertKeySeeds(cfg.Auth.Keys),
	})
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, orch, jobService, authSvc)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildRegistry 按配置为每个能力绑定适配器。
// 未配置外部后端的能力使用进程内适配器兜底。
func buildRegistry(ctx context.Context, cfg *config.Config) (*capability.Registry, error) {
	registry := capability.NewRegistry()
	fallback := adaptermemory.New()

	assigned := make(map[capability.Capability]capability.Adapter)

	if cfg.Adapters.Warehouse.Enabled {
		adapter, err := warehouse.New(ctx, warehouse.Config{
			DSN:     cfg.Adapters.Warehouse.DSN,
			MaxRows: cfg.Adapters.Warehouse.MaxRows,
		})
		if err != nil {
			return nil, err
		}
		assigned[capability.DataQuery] = adapter
	}

	if cfg.Adapters.Webhook.Enabled {
		adapter, err := webhook.New(webhook.Config{
			URL:     cfg.Adapters.Webhook.URL,
			Timeout: time.Duration(cfg.Adapters.Webhook.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		assigned[capability.Notification] = adapter
		assigned[capability.WorkflowAutomation] = adapter
	}

	if cfg.Plugins.ConfigPath != "" {
		if err := assignPluginAdapters(cfg.Plugins.ConfigPath, assigned); err != nil {
			return nil, err
		}
	}

	for _, name := range []capability.Capability{
		capability.DataQuery,
		capability.Sync,
		capability.WorkflowAutomation,
		capability.RepositoryManagement,
		capability.Notification,
		capability.InfraDeploy,
		capability.Container,
	} {
		adapter, ok := assigned[name]
		if !ok {
			adapter = fallback
		}
		if err := registry.Register(name, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// assignPluginAdapters 加载插件并按其声明的能力覆盖适配器绑定。
func assignPluginAdapters(configPath string, assigned map[capability.Capability]capability.Adapter) error {
	managerCfg, err := plugin.LoadManagerConfig(configPath)
	if err != nil {
		return err
	}
	manager, err := plugin.NewManager(managerCfg)
	if err != nil {
		return err
	}
	for _, p := range manager.All() {
		assigned[capability.Capability(p.Info().Capability)] = pluginAdapter{plugin: p}
	}
	return nil
}

// pluginAdapter 把插件契约桥接为能力适配器。
type pluginAdapter struct {
	plugin plugin.Plugin
}

func (a pluginAdapter) Invoke(ctx context.Context, action string, parameters map[string]any) (*capability.Result, error) {
	result, err := a.plugin.Invoke(ctx, action, parameters)
	if err != nil {
		return nil, err
	}
	return &capability.Result{Success: result.Success, Output: result.Output, Error: result.Error}, nil
}

func convertKeySeeds(keys []config.APIKeyConfig) []auth.KeySeed {
	seeds := make([]auth.KeySeed, 0, len(keys))
	for _, key := range keys {
		seeds = append(seeds, auth.KeySeed{Key: key.Key, Name: key.Name, Disabled: key.Disabled})
	}
	return seeds
}
