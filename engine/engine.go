// Package engine 提供混合推荐引擎的总编排。
//
// HybridEngine 组合内容召回与协同召回两路子模型，按位置加权融合、
// 规则过滤后返回最终推荐列表，并承担旁路缓存、缓存失效与后台微调
// 的调度。推荐路径永不硬失败：任何子环节出错都降级为热门兜底。
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/filter"
	"github.com/rushteam/hybrec/rank"
	"github.com/rushteam/hybrec/recall"
)

const recommendationKeyPrefix = "recommendations:user:"

// Deps 是引擎的外部依赖集合，由调用方装配注入。
// Cache 为 nil 时引擎无缓存直跑，不会 panic。
type Deps struct {
	Contents     core.ContentStore
	Interactions core.InteractionStore
	Users        core.UserStore
	Cache        core.Cache
	Logger       zerolog.Logger
}

// HybridEngine 是混合推荐引擎。所有可变状态由引擎实例持有，
// 生命周期归创建方管理，同一进程可以并存多个互不干扰的实例。
type HybridEngine struct {
	cb         *recall.ContentBasedModel
	cf         *recall.CollaborativeModel
	fusion     *rank.WeightedFusion
	popularity *recall.PopularityRanker
	filters    []filter.Filter

	deps Deps
	cfg  core.EngineConfig
	log  zerolog.Logger

	nudges    chan nudgeTask
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New 装配一个混合推荐引擎并启动后台微调 worker。
// 配置中的过滤规则在此处编译，非法规则直接返回错误。
func New(cfg core.EngineConfig, deps Deps) (*HybridEngine, error) {
	cfg = cfg.Normalize()
	log := deps.Logger.With().Str("component", "hybrid_engine").Logger()

	filters, err := filter.NewRuleFilters(cfg.FilterRules)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	popularity := recall.NewPopularityRanker(deps.Interactions, deps.Cache, cfg.PopularityTTL)
	recallDeps := recall.Deps{
		Contents:     deps.Contents,
		Interactions: deps.Interactions,
		Users:        deps.Users,
		Cache:        deps.Cache,
		Popularity:   popularity,
		Logger:       deps.Logger,
	}

	e := &HybridEngine{
		cb:         recall.NewContentBasedModel(cfg, recallDeps),
		cf:         recall.NewCollaborativeModel(cfg, recallDeps),
		fusion:     rank.NewWeightedFusion(cfg),
		popularity: popularity,
		filters:    filters,
		deps:       deps,
		cfg:        cfg,
		log:        log,
		nudges:     make(chan nudgeTask, cfg.QueueSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go e.nudgeWorker()
	return e, nil
}

// Initialize 做首次模型训练。内容模型训练失败视为初始化失败；
// 协同模型在没有任何交互时跳过训练，引擎以纯内容模式上线。
func (e *HybridEngine) Initialize(ctx context.Context) error {
	if err := e.cb.Train(ctx); err != nil {
		return fmt.Errorf("engine initialize: %w", err)
	}

	n, err := e.deps.Interactions.Count(ctx)
	if err != nil {
		return fmt.Errorf("engine initialize: %w", err)
	}
	if n == 0 {
		e.log.Info().Msg("no interactions yet, collaborative model skipped")
		return nil
	}
	if err := e.cf.Train(ctx); err != nil {
		// 协同侧训练失败不阻塞上线，内容召回 + 热门兜底照常工作
		e.log.Warn().Err(err).Msg("collaborative model not trained")
	}
	return nil
}

// RecommendForUser 为用户生成 limit 条推荐。
//
// 流程：查旁路缓存 → 两路召回并发取 2*limit 个候选 → 加权融合 →
// 规则过滤 → 解析为完整内容 → 截断、回写缓存。
// 任何环节失败都降级为热门兜底，此方法不向调用方返回错误。
func (e *HybridEngine) RecommendForUser(ctx context.Context, userID string, limit int) []*core.ContentItem {
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("%s%s:%d", recommendationKeyPrefix, userID, limit)
	if items, ok := e.cachedRecommendations(ctx, cacheKey); ok {
		return items
	}

	fetch := 2 * limit
	var cfIDs, cbIDs []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.cf.State() != recall.StateTrained {
			return nil
		}
		ids, err := e.cf.Recommend(gctx, userID, fetch)
		if err != nil {
			return err
		}
		cfIDs = ids
		return nil
	})
	g.Go(func() error {
		if e.cb.State() != recall.StateTrained {
			return nil
		}
		ids, err := e.cb.Recommend(gctx, userID, nil, fetch)
		if err != nil {
			return err
		}
		cbIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("recall failed, degraded to popularity")
		return e.popularityItems(ctx, limit)
	}

	fused := e.fusion.Fuse(cfIDs, cbIDs, fetch)
	items, err := e.deps.Contents.FindByIDs(ctx, fused)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("content resolve failed, degraded to popularity")
		return e.popularityItems(ctx, limit)
	}
	items = filter.Apply(ctx, e.filters, items)
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		return e.popularityItems(ctx, limit)
	}

	e.cacheRecommendations(ctx, cacheKey, items)
	return items
}

// LogInteraction 记录一次用户交互并做两件后续动作：
// 同步失效该用户的推荐缓存，异步投递协同模型的增量微调任务。
// 只有写存储失败才返回错误，后续动作失败只记日志。
func (e *HybridEngine) LogInteraction(ctx context.Context, event *core.InteractionEvent) error {
	if err := e.deps.Interactions.Create(ctx, event); err != nil {
		return fmt.Errorf("engine log interaction: %w", err)
	}

	e.invalidateUser(ctx, event.UserID)

	task := nudgeTask{EventID: event.ID, UserID: event.UserID, ContentID: event.ContentID}
	select {
	case e.nudges <- task:
	default:
		// 队列打满时丢任务保主流程，交互记录本身已落库
		e.log.Warn().Str("user_id", event.UserID).Msg("nudge queue full, task dropped")
	}
	return nil
}

// RefreshModels 全量重训两个子模型并清空全部推荐缓存。
// 两路训练都尝试执行，错误合并返回。
func (e *HybridEngine) RefreshModels(ctx context.Context) error {
	cbErr := e.cb.Train(ctx)
	cfErr := e.cf.Train(ctx)

	if e.deps.Cache != nil {
		if _, err := e.deps.Cache.DeleteByPattern(ctx, recommendationKeyPrefix+"*"); err != nil {
			e.log.Warn().Err(err).Msg("recommendation cache flush failed")
		}
	}
	return errors.Join(cbErr, cfErr)
}

// ContentState 返回内容子模型的训练状态。
func (e *HybridEngine) ContentState() recall.State { return e.cb.State() }

// CollaborativeState 返回协同子模型的训练状态。
func (e *HybridEngine) CollaborativeState() recall.State { return e.cf.State() }

// Close 停止后台 worker：排空已入队的微调任务后返回。
// Close 之后的 LogInteraction 仍会落库，但微调任务不再被消费。
// 重复调用安全。
func (e *HybridEngine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		<-e.stopped
	})
	return nil
}

func (e *HybridEngine) invalidateUser(ctx context.Context, userID string) {
	if e.deps.Cache == nil {
		return
	}
	pattern := recommendationKeyPrefix + userID + ":*"
	if _, err := e.deps.Cache.DeleteByPattern(ctx, pattern); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation cache invalidation failed")
	}
}

func (e *HybridEngine) cachedRecommendations(ctx context.Context, key string) ([]*core.ContentItem, bool) {
	if e.deps.Cache == nil {
		return nil, false
	}
	raw, err := e.deps.Cache.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			e.log.Warn().Err(err).Msg("recommendation cache read failed")
		}
		return nil, false
	}
	var items []*core.ContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		e.log.Warn().Err(err).Msg("recommendation cache entry corrupted")
		return nil, false
	}
	return items, true
}

func (e *HybridEngine) cacheRecommendations(ctx context.Context, key string, items []*core.ContentItem) {
	if e.deps.Cache == nil {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := e.deps.Cache.Set(ctx, key, raw, e.cfg.RecommendationTTL); err != nil {
		e.log.Warn().Err(err).Msg("recommendation cache write failed")
	}
}

func (e *HybridEngine) popularityItems(ctx context.Context, limit int) []*core.ContentItem {
	ids, err := e.popularity.Top(ctx, limit)
	if err != nil {
		e.log.Error().Err(err).Msg("popularity fallback failed")
		return nil
	}
	items, err := e.deps.Contents.FindByIDs(ctx, ids)
	if err != nil {
		e.log.Error().Err(err).Msg("popularity fallback resolve failed")
		return nil
	}
	return items
}
