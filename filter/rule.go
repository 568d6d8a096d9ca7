package filter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/hybrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// getCELEnv 获取或创建 CEL 环境，定义 item 变量。
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = cel.NewEnv(
			cel.Variable("item", cel.DynType),
		)
	})
	return celEnv, err
}

// RuleFilter 是规则过滤器，使用 CEL (Common Expression Language) 表达式
// 判断内容是否应该被过滤。表达式在构造时编译并缓存，可以多次复用。
//
// 表达式语法（CEL 标准语法）：
//   - 基础：item.type == "video" / item.category != "news"
//   - 数值：item.duration > 600.0
//   - 逻辑：item.type == "video" && item.duration > 600.0
//   - 包含："nsfw" in item.tags
//
// 表达式返回 true 表示该内容应该被移除。
type RuleFilter struct {
	expr string
	prg  cel.Program
}

// NewRuleFilter 编译 CEL 表达式并创建规则过滤器。
// 表达式非法时返回错误，过滤器不会带病上线。
func NewRuleFilter(expr string) (*RuleFilter, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &RuleFilter{expr: expr, prg: prg}, nil
}

// NewRuleFilters 批量编译一组表达式，任意一条非法整体失败。
func NewRuleFilters(exprs []string) ([]Filter, error) {
	filters := make([]Filter, 0, len(exprs))
	for _, e := range exprs {
		f, err := NewRuleFilter(e)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func (f *RuleFilter) Name() string {
	return "filter.rule"
}

func (f *RuleFilter) ShouldFilter(_ context.Context, item *core.ContentItem) (bool, error) {
	if item == nil {
		return true, nil
	}

	out, _, err := f.prg.Eval(map[string]interface{}{
		"item": buildInput(item),
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", f.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", f.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.ContentItem) map[string]interface{} {
	tags := make([]interface{}, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, t)
	}
	return map[string]interface{}{
		"id":       item.ID,
		"title":    item.Title,
		"type":     string(item.Type),
		"category": item.Category,
		"tags":     tags,
		"duration": item.Duration,
		"metadata": item.Metadata,
	}
}
