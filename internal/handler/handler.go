package handler

import (
	"time"

	"harscript/internal/correlation"
	"harscript/internal/logger"
	"harscript/internal/parameter"
	"harscript/internal/rules"
	"harscript/internal/substitution"
	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

// 请求在分组状态机中的归类
const (
	stateParent               = "parent"
	stateChild                = "child"
	stateChildWithCorrelation = "child_with_correlation"
	stateRedirectPending      = "redirect_pending"
	stateRedirectResolved     = "redirect_resolved"
	stateRedirectPromoted     = "redirect_promoted"
	stateExcluded             = "excluded"
)

// Handler 录制条目处理器，负责参数化、关联扫描与请求分组
type Handler struct {
	rules            *rulespec.RuleSet
	params           []parameter.Resolved
	thinkTime        time.Duration
	redirectStatuses []int
	ignoreCase       bool
	log              logger.Logger

	ctx *Context
}

// Config 配置选项
type Config struct {
	Rules *rulespec.RuleSet
	// Now 日期参数的基准时间，为零值时取当前时间
	Now              time.Time
	ThinkTime        time.Duration
	RedirectStatuses []int
	IgnoreCase       bool
	Logger           logger.Logger
}

// DefaultRedirectStatuses 默认视为重定向的状态码
var DefaultRedirectStatuses = []int{301, 302, 303, 307, 308}

// New 创建处理器
func New(cfg Config) *Handler {
	if cfg.Rules == nil {
		cfg.Rules = &rulespec.RuleSet{}
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.RedirectStatuses == nil {
		cfg.RedirectStatuses = DefaultRedirectStatuses
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	h := &Handler{
		rules:            cfg.Rules,
		params:           parameter.Resolve(cfg.Rules.Parameters, cfg.Now),
		thinkTime:        cfg.ThinkTime,
		redirectStatuses: cfg.RedirectStatuses,
		ignoreCase:       cfg.IgnoreCase,
		log:              cfg.Logger,
	}
	h.Reset(nil)
	return h
}

// Reset 丢弃当前运行状态，使用新的动作时间线重新开始
func (h *Handler) Reset(actions []traffic.RecordedAction) {
	h.ctx = newContext(h.rules.Name, actions)
	h.ctx.Script.Parameters = h.rules.Parameters
	h.ctx.Script.Files = h.rules.Files
}

// Context 返回当前运行状态
func (h *Handler) Context() *Context { return h.ctx }

// Run 按录制顺序处理全部条目并返回生成结果，遇到第一个错误即中止
func (h *Handler) Run(capture *traffic.Capture, actions []traffic.RecordedAction) (*model.Script, error) {
	h.Reset(actions)
	for _, e := range capture.Entries {
		if err := h.HandleEntry(e); err != nil {
			h.log.Err(err, "生成中止", "entry", e.Index)
			return nil, err
		}
	}
	return h.Finish(), nil
}

// Finish 输出剩余动作事件并汇总绑定结果
func (h *Handler) Finish() *model.Script {
	ctx := h.ctx
	h.processActions(time.Time{}, true)

	for _, b := range ctx.Bindings.All() {
		ctx.Script.Bindings[b.ParamName] = b.Value
	}
	for name, v := range parameter.Values(h.params) {
		ctx.Script.Bindings[name] = v
	}

	for _, g := range ctx.Script.Groups() {
		ctx.Stats.Groups++
		ctx.Stats.Requests += 1 + len(g.Children)
	}
	h.log.Info("脚本生成完成",
		"entries", ctx.Stats.Entries,
		"excluded", ctx.Stats.Excluded,
		"groups", ctx.Stats.Groups,
		"correlations", ctx.Stats.Correlations,
		"promotions", ctx.Stats.Promotions,
	)
	return ctx.Script
}

// HandleEntry 处理单个录制条目
func (h *Handler) HandleEntry(e *traffic.Entry) error {
	ctx := h.ctx
	ctx.EntryIndex++
	ctx.Stats.Entries++

	if e.Request == nil {
		return &model.ProcessingError{EntryIndex: e.Index, Reason: "entry has no request"}
	}
	if e.Response == nil {
		cp := *e
		cp.Response = traffic.NewResponse(0)
		e = &cp
	}
	if h.excluded(e.Request.URL) {
		ctx.Stats.Excluded++
		h.log.Debug("排除录制条目", "entry", e.Index, "url", e.Request.URL, "state", stateExcluded)
		return nil
	}

	ctx.Curr = e
	ctx.Referer = e.Referer()
	ctx.Redirecting = h.isRedirect(e.Response.Status)
	ctx.Redirected = ctx.Prev != nil && h.isRedirect(ctx.Prev.Response.Status)

	h.processActions(e.StartedAt, false)
	state, err := h.onEntry(e)
	if err != nil {
		return err
	}
	h.log.Debug("处理录制条目", "entry", e.Index, "url", e.Request.URL, "status", e.Response.Status, "state", state)

	ctx.Prev = e
	return nil
}

// onEntry 按重定向与 Referer 关系决定条目在脚本中的位置
func (h *Handler) onEntry(e *traffic.Entry) (string, error) {
	ctx := h.ctx
	group := ctx.Script.LastGroup()

	isParent := group == nil || ctx.Referer == "" || group.ReferrerGroupURL == "" || group.ReferrerGroupURL != ctx.Referer

	switch {
	case ctx.Redirected:
		if group == nil {
			return "", &model.ProcessingError{EntryIndex: e.Index, URL: e.Request.URL, Reason: "redirect target without a preceding request"}
		}
		return h.handleRedirected(e, group, isParent)
	case isParent:
		return stateParent, h.generateParent(e)
	default:
		return h.generateChild(e, group)
	}
}

// handleRedirected 处理上一条目重定向到的请求。该请求由浏览器自动跟随，本身不写入脚本，
// 其响应中的关联值归属到发起重定向的请求。
func (h *Handler) handleRedirected(e *traffic.Entry, group *model.RequestGroup, isParent bool) (string, error) {
	ctx := h.ctx
	if ctx.Redirecting {
		group.ReferrerGroupURL = e.Request.URL
		return stateRedirectPending, nil
	}

	// 组内没有子请求时，重定向只能由主请求发起
	origin := group.Primary
	fromChild := !isParent && group.LastChild() != nil
	if fromChild {
		origin = group.LastChild()
	}
	if origin == nil {
		return "", &model.ProcessingError{EntryIndex: e.Index, URL: e.Request.URL, Reason: "originating request of redirect not found"}
	}

	matched, err := h.scan(e, origin)
	if err != nil {
		return "", err
	}

	if matched && fromChild {
		// 重定向目标带有关联值，发起请求不能再留在并发块中，提升为新组的主请求
		last := group.RemoveLastChild()
		if last != origin {
			return "", &model.ProcessingError{EntryIndex: e.Index, URL: e.Request.URL, Reason: "originating request does not equal the last child request"}
		}
		ctx.Script.AddGroup(&model.RequestGroup{Primary: origin, ReferrerGroupURL: ctx.Referer})
		ctx.Stats.Promotions++
		return stateRedirectPromoted, nil
	}

	group.ReferrerGroupURL = e.Request.URL
	return stateRedirectResolved, nil
}

// generateParent 以当前条目开启新的请求组
func (h *Handler) generateParent(e *traffic.Entry) error {
	sr := h.parameterize(e)
	if _, err := h.scan(e, sr); err != nil {
		return err
	}
	h.ctx.Script.AddGroup(&model.RequestGroup{Primary: sr, ReferrerGroupURL: e.Request.URL})
	return nil
}

// generateChild 无关联值时并入当前组，否则开启新组
func (h *Handler) generateChild(e *traffic.Entry, group *model.RequestGroup) (string, error) {
	sr := h.parameterize(e)
	matched, err := h.scan(e, sr)
	if err != nil {
		return "", err
	}
	if !matched {
		group.Children = append(group.Children, sr)
		return stateChild, nil
	}
	h.ctx.Script.AddGroup(&model.RequestGroup{Primary: sr, ReferrerGroupURL: h.ctx.Referer})
	h.ctx.Stats.Promotions++
	return stateChildWithCorrelation, nil
}

// parameterize 对条目请求的副本依次应用参数与已绑定的关联值
func (h *Handler) parameterize(e *traffic.Entry) *model.ScriptRequest {
	ctx := h.ctx
	original := e.Request.Clone()
	req := e.Request.Clone()
	opts := substitution.Options{
		Response:   e.Response,
		Original:   original,
		Eval:       ctx.Eval,
		IgnoreCase: h.ignoreCase,
		Counters:   ctx.ReplaceCounters,
	}
	parameter.Substitute(req, h.params, opts)
	correlation.Substitute(req, ctx.Bindings, opts)
	return &model.ScriptRequest{
		EntryIndex: e.Index,
		StartedAt:  e.StartedAt,
		Request:    req,
		Original:   original,
		Response:   e.Response,
	}
}

// scan 扫描条目响应，匹配结果挂到 target 上
func (h *Handler) scan(e *traffic.Entry, target *model.ScriptRequest) (bool, error) {
	ctx := h.ctx
	matched, err := correlation.Scan(e.Response, e.Request.URL, h.rules.Correlations, ctx.Indexes, ctx.Bindings)
	if err != nil {
		return false, &model.ProcessingError{EntryIndex: e.Index, URL: e.Request.URL, Reason: "correlation scan failed", Err: err}
	}
	for _, m := range matched {
		h.log.Info("捕获关联值", "entry", e.Index, "rule", m.Rule.Name, "param", m.ParamName, "values", len(m.Values))
	}
	target.Correlations = append(target.Correlations, matched...)
	ctx.Stats.Correlations += len(matched)
	return len(matched) > 0, nil
}

// processActions 输出时间早于 before 的动作事件，force 时输出全部剩余事件
func (h *Handler) processActions(before time.Time, force bool) {
	ctx := h.ctx
	for ctx.actionIndex+1 < len(ctx.actions) {
		next := ctx.actions[ctx.actionIndex+1]
		if !force && !next.Timestamp.Before(before) {
			return
		}
		ctx.actionIndex++
		switch next.State {
		case traffic.ActionStart:
			if ctx.transactionStarted && h.thinkTime > 0 {
				ctx.Script.AddThinkTime(h.thinkTime)
			}
			ctx.transactionStarted = true
			ctx.openTransaction(next.Name)
			ctx.Script.StartTransaction(next.Name)
			ctx.Stats.Transactions++
		case traffic.ActionEnd:
			ctx.closeTransaction(next.Name)
			ctx.Script.EndTransaction(next.Name)
		}
	}
}

func (h *Handler) excluded(url string) bool {
	for _, ex := range h.rules.ExcludeURLs {
		if rules.WildcardFold(url, ex.URL) {
			return true
		}
	}
	return false
}

func (h *Handler) isRedirect(status int) bool {
	for _, s := range h.redirectStatuses {
		if s == status {
			return true
		}
	}
	return false
}
