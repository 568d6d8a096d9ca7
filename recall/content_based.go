package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/feature"
	"github.com/rushteam/hybrec/model"
)

// embeddingKey 是内容嵌入的缓存 key 前缀。
const embeddingKeyPrefix = "embedding:content:"

// ContentBasedModel 是基于内容的子模型（Content-Based Filtering）。
//
// 核心思想："用户喜欢具有某些特征的内容，推荐特征相似的其他内容"
//
// 算法流程：
//  1. 内容 → 定长特征向量（feature.Extractor）
//  2. 自编码器压缩为低维嵌入（model.Autoencoder 瓶颈层）
//  3. 用户兴趣向量 = 最近交互内容嵌入的算术均值
//  4. 按余弦相似度对候选排序
//
// 嵌入双写：进程内嵌入表 + 缓存（TTL 24h，批量 pipeline 写入）。
// 重训后缓存里的旧嵌入过期但不主动失效，调用方接受最终新鲜。
type ContentBasedModel struct {
	mu    sync.RWMutex
	state State

	auto       *model.Autoencoder
	embeddings map[string][]float64

	extractor *feature.Extractor
	deps      Deps
	cfg       core.EngineConfig
	log       zerolog.Logger
}

// NewContentBasedModel 创建内容子模型（未训练状态）。
func NewContentBasedModel(cfg core.EngineConfig, deps Deps) *ContentBasedModel {
	cfg = cfg.Normalize()
	return &ContentBasedModel{
		state:      StateUntrained,
		embeddings: make(map[string][]float64),
		extractor:  feature.NewExtractor(cfg.FeatureDim),
		deps:       deps,
		cfg:        cfg,
		log:        deps.Logger.With().Str("model", "content_based").Logger(),
	}
}

// State 返回当前生命周期状态。
func (m *ContentBasedModel) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Train 对全量内容训练自编码器，并为每条内容生成嵌入。
//
// 失败时回退到训练前状态并返回错误；不安装半成品模型。
// 训练是阻塞的粗粒度维护操作，调用方需保证同一实例同时只有一次训练。
func (m *ContentBasedModel) Train(ctx context.Context) error {
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

	items, err := m.deps.Contents.FindAll(ctx)
	if err != nil {
		return fail(fmt.Errorf("content-based train: %w", err))
	}
	if len(items) == 0 {
		return fail(core.ErrInsufficientData)
	}

	features := make([][]float64, len(items))
	for i, item := range items {
		features[i] = m.extractor.Extract(item)
	}

	auto := model.NewAutoencoder(m.cfg.FeatureDim, m.cfg.EmbeddingDim, time.Now().UnixNano())
	tc := m.cfg.ContentBased
	trainLoss, valLoss, err := auto.Fit(features, tc.Epochs, tc.BatchSize, tc.ValidationSplit, tc.LearningRate)
	if err != nil {
		return fail(fmt.Errorf("content-based train: %w", err))
	}
	m.log.Info().
		Float64("train_loss", trainLoss).
		Float64("val_loss", valLoss).
		Int("items", len(items)).
		Msg("content-based model trained")

	// 生成全量嵌入并双写：进程内表 + 缓存批量 pipeline
	table := make(map[string][]float64, len(items))
	cached := make(map[string][]byte, len(items))
	for i, item := range items {
		emb := auto.Encode(features[i])
		table[item.ID] = emb
		if data, err := json.Marshal(emb); err == nil {
			cached[embeddingKeyPrefix+item.ID] = data
		}
	}
	if m.deps.Cache != nil {
		if err := m.deps.Cache.BatchSet(ctx, cached, m.cfg.EmbeddingTTL); err != nil {
			// 缓存不可用是可恢复错误：进程内表仍然完整，绕过即可
			m.log.Warn().Err(err).Msg("embedding cache write failed, serving from in-process table")
		}
	}

	m.mu.Lock()
	m.auto = auto
	m.embeddings = table
	m.state = StateTrained
	m.mu.Unlock()
	return nil
}

// Embed 对单条内容做一次编码器前向传播（内容更新时用，无需整体重训）。
// 结果双写进程内表与缓存。模型未训练返回 ErrModelUntrained。
func (m *ContentBasedModel) Embed(ctx context.Context, item *core.ContentItem) ([]float64, error) {
	m.mu.RLock()
	auto := m.auto
	trained := m.state == StateTrained
	m.mu.RUnlock()
	if !trained || auto == nil {
		return nil, core.ErrModelUntrained
	}

	emb := auto.Encode(m.extractor.Extract(item))

	m.mu.Lock()
	m.embeddings[item.ID] = emb
	m.mu.Unlock()

	if m.deps.Cache != nil {
		if data, err := json.Marshal(emb); err == nil {
			if err := m.deps.Cache.Set(ctx, embeddingKeyPrefix+item.ID, data, m.cfg.EmbeddingTTL); err != nil {
				m.log.Warn().Err(err).Str("content_id", item.ID).Msg("embedding cache write failed")
			}
		}
	}
	return emb, nil
}

// Recommend 为用户生成内容相似度排序的候选 id。
//
// 兴趣向量取最近 RecentWindow 条交互（任意类型）对应嵌入的均值；
// 用户无交互时直接走热门兜底。已交互内容与 excludeIDs 一并排除。
// 缺失嵌入的候选相似度计 0，不报错；平局按候选扫描（插入）顺序稳定。
func (m *ContentBasedModel) Recommend(ctx context.Context, userID string, excludeIDs []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	events, err := m.deps.Interactions.FindByUser(ctx, userID, m.cfg.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("content-based recommend: %w", err)
	}
	if len(events) == 0 {
		return m.deps.Popularity.Top(ctx, limit)
	}

	exclude := make(map[string]struct{}, len(excludeIDs)+len(events))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}
	recentIDs := make([]string, 0, len(events))
	for _, e := range events {
		recentIDs = append(recentIDs, e.ContentID)
		exclude[e.ContentID] = struct{}{}
	}

	interest := meanVector(m.lookupEmbeddings(ctx, recentIDs), m.cfg.EmbeddingDim)

	items, err := m.deps.Contents.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("content-based recommend: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, 0, len(items))
	for _, item := range items {
		if _, skip := exclude[item.ID]; skip {
			continue
		}
		score := 0.0
		if emb := m.embeddingFor(ctx, item.ID); emb != nil {
			score = cosineSimilarity(interest, emb)
		}
		candidates = append(candidates, scored{id: item.ID, score: score})
	}

	// 稳定排序：分数相同保持扫描顺序
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

// lookupEmbeddings 批量取嵌入：进程内表优先，缺失的走一次缓存 BatchGet。
// 仍缺失的直接跳过（它们不参与兴趣向量均值）。
func (m *ContentBasedModel) lookupEmbeddings(ctx context.Context, ids []string) [][]float64 {
	out := make([][]float64, 0, len(ids))
	var missing []string

	m.mu.RLock()
	for _, id := range ids {
		if emb, ok := m.embeddings[id]; ok {
			out = append(out, emb)
		} else {
			missing = append(missing, embeddingKeyPrefix+id)
		}
	}
	m.mu.RUnlock()

	if len(missing) == 0 || m.deps.Cache == nil {
		return out
	}
	cached, err := m.deps.Cache.BatchGet(ctx, missing)
	if err != nil {
		m.log.Warn().Err(err).Msg("embedding cache read failed")
		return out
	}
	for _, data := range cached {
		var emb []float64
		if json.Unmarshal(data, &emb) == nil {
			out = append(out, emb)
		}
	}
	return out
}

// embeddingFor 取单条内容的嵌入：进程内表优先，缓存兜底；都没有返回 nil。
func (m *ContentBasedModel) embeddingFor(ctx context.Context, id string) []float64 {
	m.mu.RLock()
	emb, ok := m.embeddings[id]
	m.mu.RUnlock()
	if ok {
		return emb
	}
	if m.deps.Cache == nil {
		return nil
	}
	data, err := m.deps.Cache.Get(ctx, embeddingKeyPrefix+id)
	if err != nil {
		return nil
	}
	var cached []float64
	if json.Unmarshal(data, &cached) != nil {
		return nil
	}
	return cached
}
