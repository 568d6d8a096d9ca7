package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 错误分级（见各检查函数）：
//   - MODEL_UNTRAINED / COMPUTATION_FAILURE / CACHE_UNAVAILABLE 为可恢复错误，
//     调用方应降级（热门兜底 / 绕过缓存）而非向上抛出
//   - INSUFFICIENT_DATA 仅从显式 Train 调用向上传播
type DomainError struct {
	Code    string // 错误代码（如 "MODEL_UNTRAINED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "recall", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError 创建新的领域错误。
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// GetDomainError 获取 DomainError，沿 errors.Unwrap 链查找，不是则返回 nil。
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeNotFound           = "NOT_FOUND"            // 资源不存在
	ErrorCodeModelUntrained     = "MODEL_UNTRAINED"      // 模型未训练（可恢复，触发兜底）
	ErrorCodeInsufficientData   = "INSUFFICIENT_DATA"    // 训练数据不足（仅从 Train 传播）
	ErrorCodeComputationFailure = "COMPUTATION_FAILURE"  // 数值/推理错误（可恢复，触发兜底）
	ErrorCodeCacheUnavailable   = "CACHE_UNAVAILABLE"    // 缓存不可用（可恢复，绕过缓存）
)

// 模块名称常量
const (
	ModuleStore  = "store"
	ModuleRecall = "recall"
	ModuleModel  = "model"
	ModuleEngine = "engine"
)

// 预定义错误实例
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrModelUntrained 表示模型尚未完成训练，调用方应走兜底路径
	ErrModelUntrained = NewDomainError(ModuleRecall, ErrorCodeModelUntrained, "recall: model is not trained")

	// ErrInsufficientData 表示训练数据不足（零用户/零内容/零交互）
	ErrInsufficientData = NewDomainError(ModuleRecall, ErrorCodeInsufficientData, "recall: insufficient data for training")
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsStoreNotFound 检查错误是否为 key 不存在。
func IsStoreNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

// IsModelUntrained 检查错误是否为模型未训练。
func IsModelUntrained(err error) bool {
	return hasCode(err, ErrorCodeModelUntrained)
}

// IsInsufficientData 检查错误是否为训练数据不足。
func IsInsufficientData(err error) bool {
	return hasCode(err, ErrorCodeInsufficientData)
}

// IsComputationFailure 检查错误是否为数值/推理错误。
func IsComputationFailure(err error) bool {
	return hasCode(err, ErrorCodeComputationFailure)
}

// IsCacheUnavailable 检查错误是否为缓存不可用。
func IsCacheUnavailable(err error) bool {
	return hasCode(err, ErrorCodeCacheUnavailable)
}
