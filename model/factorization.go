package model

import (
	"fmt"
	"math/rand"
)

// Sample 是协同模型的一条训练样本：(用户索引, 内容索引) → 归一化评分。
type Sample struct {
	User   int
	Item   int
	Rating float64
}

// Factorization 是带偏置的隐因子模型（Latent Factor Model）。
//
// 核心思想：用户与内容各自映射到低维隐向量，
// 亲和度 = sigmoid(用户向量·内容向量 + 用户偏置 + 内容偏置 + 全局偏置)，
// 以交互评分（无评分时取 0.5）为目标做 MSE 回归。
//
// 工程特征：
//   - 实时性：好（推理为一次点积）
//   - 训练：小批量 SGD，固定轮数 + 验证集
//   - 冷启动：差（未见过的用户/内容走热门兜底，由上层处理）
type Factorization struct {
	// NumUsers / NumItems 是索引基数（越界索引推理时返回错误）
	NumUsers int
	NumItems int

	// Dim 是隐因子维度
	Dim int

	// UserFactors / ItemFactors 是隐向量表：factors[index][k]
	UserFactors [][]float64
	ItemFactors [][]float64

	// UserBias / ItemBias / GlobalBias 是偏置项
	UserBias   []float64
	ItemBias   []float64
	GlobalBias float64

	rng *rand.Rand
}

// NewFactorization 创建隐因子模型，小随机数初始化，seed 固定时可复现。
func NewFactorization(numUsers, numItems, dim int, seed int64) *Factorization {
	if dim <= 0 {
		dim = 20
	}
	rng := rand.New(rand.NewSource(seed))
	m := &Factorization{
		NumUsers:    numUsers,
		NumItems:    numItems,
		Dim:         dim,
		UserFactors: make([][]float64, numUsers),
		ItemFactors: make([][]float64, numItems),
		UserBias:    make([]float64, numUsers),
		ItemBias:    make([]float64, numItems),
		rng:         rng,
	}
	for u := range m.UserFactors {
		m.UserFactors[u] = randomVector(dim, rng)
	}
	for i := range m.ItemFactors {
		m.ItemFactors[i] = randomVector(dim, rng)
	}
	return m
}

func randomVector(dim int, rng *rand.Rand) []float64 {
	v := make([]float64, dim)
	for k := range v {
		v[k] = rng.NormFloat64() * 0.1
	}
	return v
}

// Predict 返回 (user, item) 的预测亲和度，范围 (0,1)。
// 索引越界返回错误（调用方映射表与模型基数不一致时出现）。
func (m *Factorization) Predict(user, item int) (float64, error) {
	if user < 0 || user >= m.NumUsers {
		return 0, fmt.Errorf("factorization: user index %d out of range [0,%d)", user, m.NumUsers)
	}
	if item < 0 || item >= m.NumItems {
		return 0, fmt.Errorf("factorization: item index %d out of range [0,%d)", item, m.NumItems)
	}
	return m.predict(user, item), nil
}

func (m *Factorization) predict(user, item int) float64 {
	z := m.GlobalBias + m.UserBias[user] + m.ItemBias[item] + dot(m.UserFactors[user], m.ItemFactors[item])
	return sigmoid(z)
}

// Fit 在样本集上训练模型，返回最后一轮的训练损失与验证损失。
func (m *Factorization) Fit(samples []Sample, epochs, batchSize int, validationSplit, lr float64) (trainLoss, valLoss float64, err error) {
	if len(samples) == 0 {
		return 0, 0, fmt.Errorf("factorization: no samples")
	}
	if epochs <= 0 {
		epochs = 30
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if lr <= 0 {
		lr = 0.001
	}

	valCount := int(float64(len(samples)) * validationSplit)
	if valCount >= len(samples) {
		valCount = len(samples) - 1
	}
	train := samples[:len(samples)-valCount]
	val := samples[len(samples)-valCount:]

	idx := make([]int, len(train))
	for i := range idx {
		idx[i] = i
	}

	for epoch := 0; epoch < epochs; epoch++ {
		m.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		epochLoss := 0.0
		for start := 0; start < len(idx); start += batchSize {
			end := start + batchSize
			if end > len(idx) {
				end = len(idx)
			}
			for _, i := range idx[start:end] {
				epochLoss += m.step(train[i], lr)
			}
		}
		trainLoss = epochLoss / float64(len(train))
	}

	valLoss = m.evaluate(val)
	return trainLoss, valLoss, nil
}

// FineTune 在一个小窗口上做短程微调（在线 nudge 用）。
// 与 Fit 相同的更新规则，少量轮数、小批量、不留验证集。
func (m *Factorization) FineTune(samples []Sample, epochs, batchSize int, lr float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("factorization: no samples")
	}
	if epochs <= 0 {
		epochs = 3
	}
	if batchSize <= 0 || batchSize > len(samples) {
		batchSize = len(samples)
	}
	if lr <= 0 {
		lr = 0.001
	}

	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	for epoch := 0; epoch < epochs; epoch++ {
		m.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for start := 0; start < len(idx); start += batchSize {
			end := start + batchSize
			if end > len(idx) {
				end = len(idx)
			}
			for _, i := range idx[start:end] {
				m.step(samples[i], lr)
			}
		}
	}
	return nil
}

// step 对单样本做一次 SGD 更新，返回该样本的平方误差。
// 越界样本直接跳过（损失计 0），训练对脏数据保持鲁棒。
func (m *Factorization) step(s Sample, lr float64) float64 {
	if s.User < 0 || s.User >= m.NumUsers || s.Item < 0 || s.Item >= m.NumItems {
		return 0
	}
	p := m.predict(s.User, s.Item)
	diff := p - s.Rating
	// dL/dz = 2*(p-r) * p*(1-p)
	g := 2 * diff * p * (1 - p)

	uf := m.UserFactors[s.User]
	itf := m.ItemFactors[s.Item]
	for k := 0; k < m.Dim; k++ {
		du := g * itf[k]
		di := g * uf[k]
		uf[k] -= lr * du
		itf[k] -= lr * di
	}
	m.UserBias[s.User] -= lr * g
	m.ItemBias[s.Item] -= lr * g
	m.GlobalBias -= lr * g

	return diff * diff
}

// evaluate 返回样本集上的平均平方误差。
func (m *Factorization) evaluate(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range samples {
		if s.User < 0 || s.User >= m.NumUsers || s.Item < 0 || s.Item >= m.NumItems {
			continue
		}
		diff := m.predict(s.User, s.Item) - s.Rating
		total += diff * diff
	}
	return total / float64(len(samples))
}
