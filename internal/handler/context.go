package handler

import (
	"harscript/internal/correlation"
	"harscript/internal/rules"
	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// Context 单次生成的运行期状态，由 Handler 独占
type Context struct {
	EntryIndex  int
	Prev        *traffic.Entry
	Curr        *traffic.Entry
	Referer     string
	Redirecting bool
	Redirected  bool

	Script   *model.Script
	Indexes  correlation.Indexes
	Bindings *correlation.Bindings
	// Eval 持有当前打开的事务与请求/响应过滤器出现次数
	Eval *rules.EvalContext
	// ReplaceCounters 替换过滤器出现次数
	ReplaceCounters map[*rulespec.ReplaceFilter]int
	Stats           model.RunStats

	actions            []traffic.RecordedAction
	actionIndex        int
	transactionStarted bool
}

func newContext(name string, actions []traffic.RecordedAction) *Context {
	return &Context{
		EntryIndex:      -1,
		Script:          model.NewScript(name),
		Indexes:         correlation.Indexes{},
		Bindings:        correlation.NewBindings(),
		Eval:            rules.NewEvalContext(nil),
		ReplaceCounters: map[*rulespec.ReplaceFilter]int{},
		actions:         actions,
		actionIndex:     -1,
	}
}

// Transactions 返回当前打开的事务名称
func (c *Context) Transactions() []string {
	return c.Eval.Actions
}

func (c *Context) openTransaction(name string) {
	c.Eval.Actions = append(c.Eval.Actions, name)
}

func (c *Context) closeTransaction(name string) {
	open := c.Eval.Actions[:0]
	for _, a := range c.Eval.Actions {
		if a != name {
			open = append(open, a)
		}
	}
	c.Eval.Actions = open
}
