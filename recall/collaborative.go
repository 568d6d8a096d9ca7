package recall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/model"
)

// 索引映射表的持久化 key（无 TTL，跨重启保持索引稳定）。
const (
	userIndexKey = "cf:index:users"
	itemIndexKey = "cf:index:items"
)

// CollaborativeModel 是协同过滤子模型（隐因子模型）。
//
// 核心思想：从历史交互学习用户与内容的低维隐向量，
// 亲和度 = 两个隐向量的点积（过 sigmoid），对全量内容打分排序。
//
// 索引映射：id→索引 由 IndexMap 维护，只在训练期间单调追加并持久化，
// 不随基数变化重算（见 IndexMap 注释）。训练后新增的内容在下次训练前
// 无法打分，计 0 分参与排序。
//
// 失败策略：推理路径的任何计算失败降级为热门兜底并记日志；
// 训练失败向上抛错且不安装半成品状态。
type CollaborativeModel struct {
	mu    sync.RWMutex
	state State

	mf        *model.Factorization
	userIndex *IndexMap
	itemIndex *IndexMap

	deps Deps
	cfg  core.EngineConfig
	log  zerolog.Logger
}

// NewCollaborativeModel 创建协同子模型（未训练状态）。
// 持久化过的索引映射表会被尽力恢复，恢复失败从空表开始。
func NewCollaborativeModel(cfg core.EngineConfig, deps Deps) *CollaborativeModel {
	cfg = cfg.Normalize()
	m := &CollaborativeModel{
		state:     StateUntrained,
		userIndex: NewIndexMap(),
		itemIndex: NewIndexMap(),
		deps:      deps,
		cfg:       cfg,
		log:       deps.Logger.With().Str("model", "collaborative").Logger(),
	}
	ctx := context.Background()
	if idx, err := loadIndexMap(ctx, deps.Cache, userIndexKey); err == nil {
		m.userIndex = idx
	}
	if idx, err := loadIndexMap(ctx, deps.Cache, itemIndexKey); err == nil {
		m.itemIndex = idx
	}
	return m
}

// State 返回当前生命周期状态。
func (m *CollaborativeModel) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Train 从最近的交互样本（上限 MaxTrainingInteractions 条）训练隐因子模型。
//
// 用户数或内容数为零、或没有任何交互时返回 INSUFFICIENT_DATA，
// 模型保持训练前状态，不保留任何半成品。
func (m *CollaborativeModel) Train(ctx context.Context) error {
	m.mu.Lock()
	prev := m.state
	m.state = StateTraining
	m.mu.Unlock()

	fail := func(err error) error {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		return err
	}

	numUsers, err := m.deps.Users.Count(ctx)
	if err != nil {
		return fail(fmt.Errorf("collaborative train: %w", err))
	}
	numItems, err := m.deps.Contents.Count(ctx)
	if err != nil {
		return fail(fmt.Errorf("collaborative train: %w", err))
	}
	if numUsers == 0 || numItems == 0 {
		return fail(core.ErrInsufficientData)
	}

	events, err := m.deps.Interactions.FindRecent(ctx, m.cfg.MaxTrainingInteractions)
	if err != nil {
		return fail(fmt.Errorf("collaborative train: %w", err))
	}
	if len(events) == 0 {
		return fail(core.ErrInsufficientData)
	}

	// 在映射表副本上扩表：全量内容 + 样本中出现的用户。
	// 成功后才原子安装，失败不留痕。
	userIdx := m.userIndex.Clone()
	itemIdx := m.itemIndex.Clone()
	items, err := m.deps.Contents.FindAll(ctx)
	if err != nil {
		return fail(fmt.Errorf("collaborative train: %w", err))
	}
	for _, item := range items {
		itemIdx.Assign(item.ID)
	}

	samples := make([]model.Sample, 0, len(events))
	for _, e := range events {
		samples = append(samples, model.Sample{
			User:   userIdx.Assign(e.UserID),
			Item:   itemIdx.Assign(e.ContentID),
			Rating: e.Rating(),
		})
	}

	mf := model.NewFactorization(userIdx.Len(), itemIdx.Len(), m.cfg.LatentDim, time.Now().UnixNano())
	tc := m.cfg.Collaborative
	trainLoss, valLoss, err := mf.Fit(samples, tc.Epochs, tc.BatchSize, tc.ValidationSplit, tc.LearningRate)
	if err != nil {
		return fail(fmt.Errorf("collaborative train: %w", err))
	}
	m.log.Info().
		Float64("train_loss", trainLoss).
		Float64("val_loss", valLoss).
		Int("samples", len(samples)).
		Int("users", userIdx.Len()).
		Int("items", itemIdx.Len()).
		Msg("collaborative model trained")

	m.mu.Lock()
	m.mf = mf
	m.userIndex = userIdx
	m.itemIndex = itemIdx
	m.state = StateTrained
	m.mu.Unlock()

	// 索引映射表持久化失败只丢失重启后的稳定性，不影响本次训练结果
	if err := userIdx.save(ctx, m.deps.Cache, userIndexKey); err != nil {
		m.log.Warn().Err(err).Msg("user index map persist failed")
	}
	if err := itemIdx.save(ctx, m.deps.Cache, itemIndexKey); err != nil {
		m.log.Warn().Err(err).Msg("item index map persist failed")
	}
	return nil
}

// Recommend 以用户隐向量对全量内容打分，返回分数倒序的前 limit 个内容 id。
// 模型未训练、用户不在索引表、或推理出错时降级为热门兜底。
func (m *CollaborativeModel) Recommend(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	ready := m.state == StateTrained && m.mf != nil
	_, known := m.userIndex.Lookup(userID)
	m.mu.RUnlock()

	if !ready || !known {
		return m.deps.Popularity.Top(ctx, limit)
	}

	items, err := m.deps.Contents.FindAll(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("collaborative recommend degraded to popularity")
		return m.deps.Popularity.Top(ctx, limit)
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, 0, len(items))

	// 整个打分循环持有读锁：FineTune 在写锁下原地改写因子，
	// 评分期间不能让它插进来
	m.mu.RLock()
	mf := m.mf
	uIdx, ok := m.userIndex.Lookup(userID)
	if mf == nil || !ok {
		m.mu.RUnlock()
		return m.deps.Popularity.Top(ctx, limit)
	}
	for _, item := range items {
		score := 0.0
		if iIdx, ok := m.itemIndex.Lookup(item.ID); ok {
			s, err := mf.Predict(uIdx, iIdx)
			if err != nil {
				// 索引表与模型基数不一致属于计算失败，整体降级
				m.mu.RUnlock()
				m.log.Warn().Err(err).Msg("collaborative recommend degraded to popularity")
				return m.deps.Popularity.Top(ctx, limit)
			}
			score = s
		}
		candidates = append(candidates, scored{id: item.ID, score: score})
	}
	m.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.id)
	}
	return out, nil
}

// UpdateUserPreferences 是在线增量微调（后台 nudge）。
//
// 回看该用户最近 NudgeWindow 条交互，不足 NudgeThreshold 条时静默跳过；
// 达到阈值则只用这个窗口做短程微调。失败只记日志，绝不向调用方抛错
// （后台任务安全）。contentID 是触发本次微调的内容，它已包含在窗口内。
func (m *CollaborativeModel) UpdateUserPreferences(ctx context.Context, userID, contentID string) {
	m.mu.RLock()
	mf := m.mf
	trained := m.state == StateTrained
	m.mu.RUnlock()
	if !trained || mf == nil {
		return
	}

	events, err := m.deps.Interactions.FindByUser(ctx, userID, m.cfg.NudgeWindow)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("preference update skipped")
		return
	}
	if len(events) < m.cfg.NudgeThreshold {
		return
	}

	m.mu.RLock()
	samples := make([]model.Sample, 0, len(events))
	for _, e := range events {
		u, uok := m.userIndex.Lookup(e.UserID)
		i, iok := m.itemIndex.Lookup(e.ContentID)
		if !uok || !iok {
			continue
		}
		samples = append(samples, model.Sample{User: u, Item: i, Rating: e.Rating()})
	}
	m.mu.RUnlock()
	if len(samples) == 0 {
		return
	}

	tc := m.cfg.Collaborative
	batch := tc.FineTuneBatch
	if batch > len(samples) {
		batch = len(samples)
	}
	m.mu.Lock()
	err = mf.FineTune(samples, tc.FineTuneEpochs, batch, tc.LearningRate)
	m.mu.Unlock()
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("preference fine-tune failed")
		return
	}
	m.log.Debug().Str("user_id", userID).Int("samples", len(samples)).Msg("user preferences updated")
}
