// Package model 提供纯 Go 实现的数值模型：带训练循环的全连接网络与隐因子模型。
// 不依赖外部推理服务，本地训练、本地推理。
package model

import (
	"math"
	"math/rand"
)

// activation 是逐元素激活函数类型。
type activation int

const (
	actLinear activation = iota
	actReLU
	actSigmoid
)

func (a activation) apply(x float64) float64 {
	switch a {
	case actReLU:
		return relu(x)
	case actSigmoid:
		return sigmoid(x)
	default:
		return x
	}
}

// derivative 返回激活函数在输出值 y 处的导数（按输出表达，省一次前向）。
func (a activation) derivative(y float64) float64 {
	switch a {
	case actReLU:
		if y > 0 {
			return 1
		}
		return 0
	case actSigmoid:
		return y * (1 - y)
	default:
		return 1
	}
}

// denseLayer 是一层全连接：out = act(W·in + b)。
// weights[neuron][input] = weight
type denseLayer struct {
	weights [][]float64
	biases  []float64
	act     activation
}

// denseNet 是多层全连接网络，支持前向传播与小批量 SGD 反向传播。
type denseNet struct {
	layers []denseLayer
}

// newDenseNet 按层大小构建网络；sizes[0] 是输入维度，
// acts 对应 sizes[1:] 每一层的激活函数。
// 权重使用 Xavier 初始化，rng 注入保证确定性。
func newDenseNet(sizes []int, acts []activation, rng *rand.Rand) *denseNet {
	net := &denseNet{layers: make([]denseLayer, len(sizes)-1)}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in+out))
		layer := denseLayer{
			weights: make([][]float64, out),
			biases:  make([]float64, out),
			act:     acts[l],
		}
		for j := 0; j < out; j++ {
			layer.weights[j] = make([]float64, in)
			for k := 0; k < in; k++ {
				layer.weights[j][k] = rng.NormFloat64() * scale
			}
		}
		net.layers[l] = layer
	}
	return net
}

// forward 前向传播，返回每一层的输出（含输入层），供反向传播使用。
func (n *denseNet) forward(input []float64) [][]float64 {
	outputs := make([][]float64, len(n.layers)+1)
	outputs[0] = input
	cur := input
	for l, layer := range n.layers {
		next := make([]float64, len(layer.weights))
		for j, w := range layer.weights {
			sum := layer.biases[j]
			for k := 0; k < len(w) && k < len(cur); k++ {
				sum += w[k] * cur[k]
			}
			next[j] = layer.act.apply(sum)
		}
		outputs[l+1] = next
		cur = next
	}
	return outputs
}

// predict 前向传播，仅返回最终输出。
func (n *denseNet) predict(input []float64) []float64 {
	outs := n.forward(input)
	return outs[len(outs)-1]
}

// backward 以 MSE 损失对单样本做一次梯度下降更新，返回该样本损失。
// target 与最终层输出同维。
func (n *denseNet) backward(input, target []float64, lr float64) float64 {
	outputs := n.forward(input)
	pred := outputs[len(outputs)-1]

	// 输出层误差：dL/dy = 2*(pred-target)/dim，合并激活导数得到 delta
	loss := 0.0
	delta := make([]float64, len(pred))
	for j := range pred {
		diff := pred[j] - target[j]
		loss += diff * diff
		delta[j] = 2 * diff / float64(len(pred)) * n.layers[len(n.layers)-1].act.derivative(pred[j])
	}
	loss /= float64(len(pred))

	// 逐层回传并更新
	for l := len(n.layers) - 1; l >= 0; l-- {
		layer := &n.layers[l]
		in := outputs[l]

		var prevDelta []float64
		if l > 0 {
			prevDelta = make([]float64, len(in))
			for j, w := range layer.weights {
				for k := 0; k < len(w) && k < len(in); k++ {
					prevDelta[k] += w[k] * delta[j]
				}
			}
			for k := range prevDelta {
				prevDelta[k] *= n.layers[l-1].act.derivative(in[k])
			}
		}

		for j, w := range layer.weights {
			g := delta[j]
			for k := 0; k < len(w) && k < len(in); k++ {
				w[k] -= lr * g * in[k]
			}
			layer.biases[j] -= lr * g
		}

		delta = prevDelta
	}

	return loss
}

// meanLoss 计算网络在样本集上的平均 MSE（自编码场景 targets 即 inputs）。
func (n *denseNet) meanLoss(inputs, targets [][]float64) float64 {
	if len(inputs) == 0 {
		return 0
	}
	total := 0.0
	for i, x := range inputs {
		pred := n.predict(x)
		t := targets[i]
		sampleLoss := 0.0
		for j := range pred {
			diff := pred[j] - t[j]
			sampleLoss += diff * diff
		}
		total += sampleLoss / float64(len(pred))
	}
	return total / float64(len(inputs))
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// dot 计算两个向量的点积（长度取较短者）。
func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
