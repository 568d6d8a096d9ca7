package engine

import (
	"context"

	"github.com/rushteam/hybrec/core"
)

// seenLimit 是 worker 端幂等去重表的容量上限，写满即整体清空。
const seenLimit = 4096

// nudgeTask 是一次后台微调任务，由 LogInteraction 投递。
// EventID 用于去重，同一事件重复投递只执行一次。
type nudgeTask struct {
	EventID   string
	UserID    string
	ContentID string
}

// nudgeWorker 是单个后台 goroutine，顺序消费微调任务。
// 任务失败只记日志不重试，推荐主流程对此无感知。
// 收到停机信号后排空队列再退出，Close 等待退出完成。
func (e *HybridEngine) nudgeWorker() {
	defer close(e.stopped)

	seen := make(map[string]struct{}, seenLimit)
	for {
		select {
		case <-e.done:
			for {
				select {
				case task := <-e.nudges:
					e.handleNudge(seen, task)
				default:
					return
				}
			}
		case task := <-e.nudges:
			e.handleNudge(seen, task)
		}
	}
}

// handleNudge 做事件级去重后执行任务，重复投递同一事件只执行一次。
func (e *HybridEngine) handleNudge(seen map[string]struct{}, task nudgeTask) {
	if task.EventID != "" {
		if _, dup := seen[task.EventID]; dup {
			return
		}
		if len(seen) >= seenLimit {
			clear(seen)
		}
		seen[task.EventID] = struct{}{}
	}
	e.runNudge(task)
}

// runNudge 刷新交互内容的嵌入缓存并对用户做增量微调。
func (e *HybridEngine) runNudge(task nudgeTask) {
	ctx := context.Background()

	item, err := e.deps.Contents.FindByID(ctx, task.ContentID)
	if err != nil {
		e.log.Warn().Err(err).Str("content_id", task.ContentID).Msg("nudge skipped, content not found")
		return
	}
	if _, err := e.cb.Embed(ctx, item); err != nil && !core.IsModelUntrained(err) {
		e.log.Warn().Err(err).Str("content_id", task.ContentID).Msg("embedding refresh failed")
	}
	e.cf.UpdateUserPreferences(ctx, task.UserID, task.ContentID)
}
