package core

import "time"

// ContentType 是内容类型枚举。
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeLink  ContentType = "link"
	ContentTypeVideo ContentType = "video"
)

// InteractionType 是交互行为类型枚举。
type InteractionType string

const (
	InteractionView    InteractionType = "view"
	InteractionLike    InteractionType = "like"
	InteractionShare   InteractionType = "share"
	InteractionSave    InteractionType = "save"
	InteractionClick   InteractionType = "click"
	InteractionComment InteractionType = "comment"
)

// ContentItem 是推荐链路中的统一内容承载结构。
// 由外部内容库（ContentStore）拥有；创建后除显式更新外不可变。
type ContentItem struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        ContentType    `json:"type"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	// Duration 是内容时长（秒），0 表示无时长语义（如文本）。
	Duration  float64   `json:"duration,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InteractionEvent 是一次用户-内容交互事件，仅追加、不修改、不删除。
//
// Value 是可选评分（1-5）；Duration 是可选停留时长（秒）。
// 两者为 nil 表示该事件未携带对应信号。
type InteractionEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	ContentID string          `json:"content_id"`
	Type      InteractionType `json:"type"`
	Value     *float64        `json:"value,omitempty"`
	Duration  *float64        `json:"duration,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Rating 返回事件的归一化评分（[0,1]），用于模型训练。
// 有评分时按 1-5 线性归一化，无评分时取中性值 0.5。
func (e *InteractionEvent) Rating() float64 {
	if e.Value == nil {
		return 0.5
	}
	v := *e.Value
	if v < 1 {
		v = 1
	}
	if v > 5 {
		v = 5
	}
	return v / 5
}
