package core

import (
	"context"
	"time"
)

// Cache 是缓存层的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 每个 key 的读写独立原子；不提供跨 key 事务
//
// 使用场景：
//   - 内容嵌入缓存：embedding:content:{id}，TTL 24h
//   - 推荐结果缓存：recommendations:user:{id}:{limit}，TTL 30min
//   - 热门兜底缓存：popular:content:{limit}
//
// 实现：
//   - store.MemoryStore 实现此接口
//   - store.RedisStore 实现此接口
type Cache interface {
	// Name 返回缓存后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值；key 不存在返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value；ttl 为 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// DeleteByPattern 按 glob 模式批量失效（如 "recommendations:user:u1:*"）。
	// 返回删除的 key 数量。
	DeleteByPattern(ctx context.Context, pattern string) (int, error)

	// BatchGet 批量读取（推荐系统常用，减少网络往返）；缺失的 key 不在结果中
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// BatchSet 批量写入（Redis 实现走 pipeline）
	BatchSet(ctx context.Context, kvs map[string][]byte, ttl time.Duration) error

	// Close 关闭连接/释放资源
	Close() error
}

// ContentStore 是内容库的领域接口（外部协作方，引擎只读）。
type ContentStore interface {
	// FindByID 按 id 获取内容；不存在返回 ErrStoreNotFound
	FindByID(ctx context.Context, id string) (*ContentItem, error)

	// FindAll 获取全部内容，按插入（创建）顺序返回。
	// 顺序是推荐打分的平局裁决依据，实现方必须保证稳定。
	FindAll(ctx context.Context) ([]*ContentItem, error)

	// FindByIDs 批量获取内容，结果保持入参 id 顺序；缺失的 id 被跳过
	FindByIDs(ctx context.Context, ids []string) ([]*ContentItem, error)

	// Count 返回内容总数
	Count(ctx context.Context) (int64, error)
}

// InteractionStore 是交互事件库的领域接口（外部协作方，仅追加）。
type InteractionStore interface {
	// Create 持久化一条交互事件；实现方负责补全 ID 与时间戳
	Create(ctx context.Context, event *InteractionEvent) error

	// FindByUser 获取某用户最近的交互，按时间倒序，最多 limit 条
	FindByUser(ctx context.Context, userID string, limit int) ([]*InteractionEvent, error)

	// FindRecent 获取全局最近的交互（训练采样上限），按时间倒序
	FindRecent(ctx context.Context, limit int) ([]*InteractionEvent, error)

	// Count 返回交互事件总数
	Count(ctx context.Context) (int64, error)

	// CountByContent 返回按内容 id 分组的交互次数（热门兜底用）
	CountByContent(ctx context.Context) (map[string]int64, error)
}

// UserStore 是用户库的领域接口。协同模型训练需要用户基数，
// 引擎对用户库只有计数这一个依赖。
type UserStore interface {
	// Count 返回用户总数
	Count(ctx context.Context) (int64, error)
}
