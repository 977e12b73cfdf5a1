package correlation

import (
	"strconv"

	"harscript/pkg/rulespec"
)

// Binding 捕获值与参数名的绑定
type Binding struct {
	Value     string
	ParamName string
	Rule      *rulespec.CorrelationRule
}

// Bindings 以捕获的字面值为键的有序映射，按首次出现顺序遍历。
// 同一字面值再次被捕获时更新参数名，位置保持不变。
type Bindings struct {
	order []string
	m     map[string]*Binding
}

// NewBindings 创建空映射
func NewBindings() *Bindings {
	return &Bindings{m: map[string]*Binding{}}
}

// Set 绑定字面值到参数名
func (b *Bindings) Set(value, paramName string, rule *rulespec.CorrelationRule) {
	if cur, ok := b.m[value]; ok {
		cur.ParamName = paramName
		cur.Rule = rule
		return
	}
	b.order = append(b.order, value)
	b.m[value] = &Binding{Value: value, ParamName: paramName, Rule: rule}
}

// Get 查找字面值的绑定
func (b *Bindings) Get(value string) (*Binding, bool) {
	v, ok := b.m[value]
	return v, ok
}

// Len 绑定数量
func (b *Bindings) Len() int { return len(b.order) }

// All 按顺序返回全部绑定
func (b *Bindings) All() []*Binding {
	out := make([]*Binding, 0, len(b.order))
	for _, v := range b.order {
		out = append(out, b.m[v])
	}
	return out
}

// Indexes 按名称递增的参数序号，整个运行期内单调递增，不会重置
type Indexes map[string]int

// Next 返回 name_n 并递增计数
func (ix Indexes) Next(name string) string {
	ix[name]++
	return name + "_" + strconv.Itoa(ix[name])
}
