package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 使用场景：
//   - Store 错误：NOT_FOUND, UNAVAILABLE
//   - Model 错误：NOT_IN_MODEL
//   - Retrain 错误：RETRAIN_IN_PROGRESS, RETRAIN_FAILED
//   - 输入校验：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NOT_IN_MODEL"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "model", "retrain"）
	Cause   error  // 底层错误，可为 nil
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap 暴露底层错误，支持 errors.Is / errors.As 沿链检查
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// IsDomainError 检查错误链中是否包含 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 从错误链中提取 DomainError，不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 包装底层错误为领域错误，保留错误链
func WrapDomainError(module, code, message string, cause error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 资源不存在
	ErrorCodeInvalidInput      = "INVALID_INPUT"       // 输入无效（评分越界、缺少 ID 等）
	ErrorCodeNotInModel        = "NOT_IN_MODEL"        // 用户/物品不在快照训练集内
	ErrorCodeUnavailable       = "UNAVAILABLE"         // 存储不可达
	ErrorCodeRetrainInProgress = "RETRAIN_IN_PROGRESS" // 已有重训任务在执行
	ErrorCodeRetrainFailed     = "RETRAIN_FAILED"      // 重训失败（拟合/持久化）
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 内部错误
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 评分存储模块
	ModuleModel   = "model"   // 隐因子模型模块
	ModuleServe   = "serve"   // 预测/推荐服务模块
	ModuleRetrain = "retrain" // 重训流水线模块
	ModuleCatalog = "catalog" // 影片目录模块
)

// 公共哨兵错误：跨模块共享的稳定错误值。
var (
	// ErrRatingNotFound 表示 (user, movie) 评分不存在
	ErrRatingNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: rating not found")

	// ErrStoreUnavailable 表示持久层不可达，调用方应快速失败
	ErrStoreUnavailable = NewDomainError(ModuleStore, ErrorCodeUnavailable, "store: unavailable")

	// ErrNotInModel 表示用户或物品不在当前快照内，调用方应走降级路径
	ErrNotInModel = NewDomainError(ModuleModel, ErrorCodeNotInModel, "model: user or movie not in snapshot")

	// ErrRetrainInProgress 表示重训并发冲突，请求被拒绝而非排队
	ErrRetrainInProgress = NewDomainError(ModuleRetrain, ErrorCodeRetrainInProgress, "retrain: another run is in progress")
)

// 通用错误检查函数

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeInvalidInput
	}
	return false
}

// IsNotInModel 检查错误是否为 NOT_IN_MODEL
func IsNotInModel(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotInModel
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}

// IsRetrainInProgress 检查错误是否为 RETRAIN_IN_PROGRESS
func IsRetrainInProgress(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeRetrainInProgress
	}
	return false
}

// IsRetrainFailed 检查错误是否为 RETRAIN_FAILED
func IsRetrainFailed(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeRetrainFailed
	}
	return false
}
