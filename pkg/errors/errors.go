package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrStoreUnavailable 存储层暂时不可用（连接、超时等），调用方应稍后重试
var ErrStoreUnavailable = errors.New("存储服务暂时不可用，请稍后重试")
