package model

import (
	"fmt"
	"math/rand"
)

// Autoencoder 是自编码器（编码器-解码器对称结构）。
//
// 核心思想：
//   - 将高维特征向量压缩到低维瓶颈层（嵌入），再重建原始输入
//   - 以均方重建误差为损失训练；瓶颈层输出即内容嵌入
//
// 结构（输入 100、嵌入 20 时）：100 → 64 → 20 → 64 → 100，
// 隐层 ReLU，输出层线性。
//
// 工程特征：
//   - 实时性：好（本地推理，单条前向 O(维度乘积)）
//   - 可解释性：弱
//   - 训练：小批量 SGD，固定轮数 + 验证集
type Autoencoder struct {
	// InputDim 是输入特征维度
	InputDim int

	// EmbeddingDim 是瓶颈层（嵌入）维度
	EmbeddingDim int

	// HiddenDim 是编码/解码中间层维度
	HiddenDim int

	net *denseNet
	rng *rand.Rand
}

// NewAutoencoder 创建一个自编码器。seed 固定时初始化权重可复现。
func NewAutoencoder(inputDim, embeddingDim int, seed int64) *Autoencoder {
	if inputDim <= 0 {
		inputDim = 100
	}
	if embeddingDim <= 0 {
		embeddingDim = 20
	}
	hidden := 64
	rng := rand.New(rand.NewSource(seed))
	return &Autoencoder{
		InputDim:     inputDim,
		EmbeddingDim: embeddingDim,
		HiddenDim:    hidden,
		net: newDenseNet(
			[]int{inputDim, hidden, embeddingDim, hidden, inputDim},
			[]activation{actReLU, actReLU, actReLU, actLinear},
			rng,
		),
		rng: rng,
	}
}

// Fit 以重建自身为目标训练自编码器。
// 返回最后一轮的训练损失与验证损失。samples 为空返回错误。
func (a *Autoencoder) Fit(samples [][]float64, epochs, batchSize int, validationSplit, lr float64) (trainLoss, valLoss float64, err error) {
	if len(samples) == 0 {
		return 0, 0, fmt.Errorf("autoencoder: no samples")
	}
	if epochs <= 0 {
		epochs = 50
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if lr <= 0 {
		lr = 0.001
	}

	// 划分验证集（尾部切分，调用方如需打散应在入参前完成）
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
		// 每轮打乱样本顺序（批内逐样本 SGD）
		a.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		epochLoss := 0.0
		for start := 0; start < len(idx); start += batchSize {
			end := start + batchSize
			if end > len(idx) {
				end = len(idx)
			}
			for _, i := range idx[start:end] {
				epochLoss += a.net.backward(train[i], train[i], lr)
			}
		}
		trainLoss = epochLoss / float64(len(train))
	}

	if len(val) > 0 {
		valLoss = a.net.meanLoss(val, val)
	}
	return trainLoss, valLoss, nil
}

// Encode 对单个特征向量做编码器前向传播，返回瓶颈层嵌入。
// 推理是确定性的：同一输入在未重新训练前总是产出同一嵌入。
func (a *Autoencoder) Encode(input []float64) []float64 {
	// 只走前两层（编码器部分）
	cur := input
	for l := 0; l < 2; l++ {
		layer := a.net.layers[l]
		next := make([]float64, len(layer.weights))
		for j, w := range layer.weights {
			sum := layer.biases[j]
			for k := 0; k < len(w) && k < len(cur); k++ {
				sum += w[k] * cur[k]
			}
			next[j] = layer.act.apply(sum)
		}
		cur = next
	}
	return cur
}

// Reconstruct 完整前向传播（编码+解码），主要用于评估重建质量。
func (a *Autoencoder) Reconstruct(input []float64) []float64 {
	return a.net.predict(input)
}
