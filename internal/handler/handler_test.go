package handler

import (
	"errors"
	"testing"
	"time"

	"harscript/pkg/model"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

var t0 = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func entry(i int, method, url, referer string, status int, body string) *traffic.Entry {
	req := traffic.NewRequest(method, url)
	if referer != "" {
		req.Headers = append(req.Headers, traffic.Header{Name: "Referer", Value: referer})
	}
	resp := traffic.NewResponse(status)
	resp.Body = body
	return &traffic.Entry{Index: i, StartedAt: t0.Add(time.Duration(i) * time.Second), Request: req, Response: resp}
}

func tokenRule() *rulespec.CorrelationRule {
	return &rulespec.CorrelationRule{
		Name:  "Token",
		Scope: rulespec.ScopeAll,
		Extractor: rulespec.Extractor{Kind: rulespec.ExtractorBoundary, Boundary: &rulespec.Boundary{
			Left:  &rulespec.BoundarySide{Text: `name="token" value="`},
			Right: &rulespec.BoundarySide{Text: `"`},
		}},
	}
}

func TestEndToEnd(t *testing.T) {
	login := entry(0, "GET", "https://app.test/login", "", 200, `<form><input name="token" value="XYZ"></form>`)
	post := entry(1, "POST", "https://app.test/login", "https://app.test/login", 200, "welcome")
	post.Request.PostData = &traffic.PostData{MimeType: "application/x-www-form-urlencoded", Text: "token=XYZ&user=jdoe"}

	h := New(Config{Rules: &rulespec.RuleSet{Name: "login", Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{login, post}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	groups := script.Groups()
	if len(groups) != 1 || len(groups[0].Children) != 1 {
		t.Fatalf("groups = %d", len(groups))
	}
	g := groups[0]
	child := g.Children[0]
	if got := child.Request.PostData.Text; got != "token={Token_1}&user=jdoe" {
		t.Errorf("POST body = %q", got)
	}
	if child.Original.PostData.Text != "token=XYZ&user=jdoe" {
		t.Errorf("original request must be preserved, got %q", child.Original.PostData.Text)
	}
	if len(g.Primary.Correlations) != 1 {
		t.Fatalf("correlations = %d", len(g.Primary.Correlations))
	}
	m := g.Primary.Correlations[0]
	if m.ParamName != "Token_1" || len(m.Values) != 1 || m.Values[0] != "XYZ" {
		t.Errorf("matched = %+v", m)
	}
	if script.Bindings["Token_1"] != "XYZ" {
		t.Errorf("bindings = %v", script.Bindings)
	}
	if post.Request.PostData.Text != "token=XYZ&user=jdoe" {
		t.Errorf("capture entry must not be mutated, got %q", post.Request.PostData.Text)
	}
}

func TestRedirectPromotion(t *testing.T) {
	a := entry(0, "GET", "https://app.test/home", "", 200, "home")
	b := entry(1, "GET", "https://app.test/sso", "https://app.test/home", 302, "")
	c := entry(2, "GET", "https://app.test/sso/done", "https://app.test/home", 200, `<input name="token" value="T1">`)

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{a, b, c}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	ga, gb := groups[0], groups[1]
	if ga.Primary.EntryIndex != 0 || len(ga.Children) != 0 {
		t.Errorf("B must be removed from group(A): %+v", ga.Children)
	}
	if ga.ReferrerGroupURL != "https://app.test/home" {
		t.Errorf("group(A) referrer changed to %q", ga.ReferrerGroupURL)
	}
	if gb.Primary.EntryIndex != 1 || gb.ReferrerGroupURL != "https://app.test/home" {
		t.Errorf("promoted group = primary %d referrer %q", gb.Primary.EntryIndex, gb.ReferrerGroupURL)
	}
	if len(gb.Primary.Correlations) != 1 || gb.Primary.Correlations[0].Values[0] != "T1" {
		t.Errorf("correlations of the redirect target must be attributed to B: %+v", gb.Primary.Correlations)
	}
	if h.Context().Stats.Promotions != 1 {
		t.Errorf("promotions = %d", h.Context().Stats.Promotions)
	}
}

func TestRedirectTargetReferredByRedirectingChild(t *testing.T) {
	a := entry(0, "GET", "https://app.test/home", "", 200, "home")
	b := entry(1, "GET", "https://app.test/sso", "https://app.test/home", 302, "")
	c := entry(2, "GET", "https://app.test/sso/done", "https://app.test/sso", 200, `<input name="token" value="T1">`)

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{a, b, c}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups[0]
	if len(g.Children) != 1 || g.Children[0].EntryIndex != 1 {
		t.Errorf("B must stay a child of group(A): %+v", g.Children)
	}
	if len(g.Primary.Correlations) != 1 || g.Primary.Correlations[0].Values[0] != "T1" {
		t.Errorf("correlations = %+v", g.Primary.Correlations)
	}
	if g.ReferrerGroupURL != "https://app.test/sso/done" {
		t.Errorf("group referrer = %q", g.ReferrerGroupURL)
	}
	if h.Context().Stats.Promotions != 0 {
		t.Errorf("promotions = %d", h.Context().Stats.Promotions)
	}
}

func TestSelfReferredParentRedirect(t *testing.T) {
	login := entry(0, "POST", "https://app.test/login", "https://app.test/login", 302, "")
	home := entry(1, "GET", "https://app.test/home", "https://app.test/login", 200, `<input name="token" value="H1">`)
	next := entry(2, "GET", "https://app.test/app.js", "https://app.test/home", 200, "js")

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{login, home, next}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups[0]
	if g.Primary.EntryIndex != 0 {
		t.Errorf("primary = %d", g.Primary.EntryIndex)
	}
	if len(g.Primary.Correlations) != 1 || g.Primary.Correlations[0].ParamName != "Token_1" {
		t.Errorf("redirect target correlations must go to the primary: %+v", g.Primary.Correlations)
	}
	if g.ReferrerGroupURL != "https://app.test/home" {
		t.Errorf("group referrer = %q", g.ReferrerGroupURL)
	}
	if len(g.Children) != 1 || g.Children[0].EntryIndex != 2 {
		t.Errorf("children = %+v", g.Children)
	}
	if h.Context().Stats.Promotions != 0 {
		t.Errorf("promotions = %d", h.Context().Stats.Promotions)
	}
}

func TestMissingResponseLeavesCaptureUntouched(t *testing.T) {
	e := entry(0, "GET", "https://app.test/ping", "", 0, "")
	e.Response = nil

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{e}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Response != nil {
		t.Errorf("capture entry response was replaced: %+v", e.Response)
	}
	groups := script.Groups()
	if len(groups) != 1 || groups[0].Primary.Response == nil || groups[0].Primary.Response.Status != 0 {
		t.Errorf("script request must carry an empty response: %+v", groups)
	}
}

func TestRedirectChainWithoutCorrelation(t *testing.T) {
	p := entry(0, "POST", "https://app.test/login", "", 302, "")
	q := entry(1, "GET", "https://app.test/welcome", "", 302, "")
	r := entry(2, "GET", "https://app.test/dashboard", "", 200, "dash")
	css := entry(3, "GET", "https://app.test/site.css", "https://app.test/dashboard", 200, "body{}")

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{p, q, r, css}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups[0]
	if g.Primary.EntryIndex != 0 || g.ReferrerGroupURL != "https://app.test/dashboard" {
		t.Errorf("group = primary %d referrer %q", g.Primary.EntryIndex, g.ReferrerGroupURL)
	}
	if len(g.Children) != 1 || g.Children[0].EntryIndex != 3 {
		t.Errorf("stylesheet must be a child of the redirect chain: %+v", g.Children)
	}
}

func TestChildWithCorrelationStartsGroup(t *testing.T) {
	page := entry(0, "GET", "https://app.test/", "", 200, "page")
	js := entry(1, "GET", "https://app.test/app.js", "https://app.test/", 200, "js")
	xhr := entry(2, "GET", "https://app.test/api/token", "https://app.test/", 200, `name="token" value="abc"`)
	img := entry(3, "GET", "https://app.test/logo.png", "https://app.test/", 200, "png")

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{tokenRule()}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{page, js, xhr, img}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0].Children) != 1 || groups[0].Children[0].EntryIndex != 1 {
		t.Errorf("first group children = %+v", groups[0].Children)
	}
	if groups[1].Primary.EntryIndex != 2 || groups[1].ReferrerGroupURL != "https://app.test/" {
		t.Errorf("second group = %+v", groups[1])
	}
	if len(groups[1].Children) != 1 || groups[1].Children[0].EntryIndex != 3 {
		t.Errorf("following concurrent requests resume in the new group: %+v", groups[1].Children)
	}
}

func TestTransactions(t *testing.T) {
	e0 := entry(0, "GET", "https://app.test/", "", 200, "")
	e1 := entry(5, "GET", "https://app.test/search", "", 200, "")
	actions := []traffic.RecordedAction{
		{Name: "Home", State: traffic.ActionStart, Timestamp: t0.Add(-time.Second)},
		{Name: "Home", State: traffic.ActionEnd, Timestamp: t0.Add(2 * time.Second)},
		{Name: "Search", State: traffic.ActionStart, Timestamp: t0.Add(3 * time.Second)},
		{Name: "Search", State: traffic.ActionEnd, Timestamp: t0.Add(9 * time.Second)},
	}

	h := New(Config{ThinkTime: 10 * time.Second})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{e0, e1}}, actions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []model.ElementKind{
		model.ElementStartTransaction, model.ElementGroup, model.ElementEndTransaction,
		model.ElementThinkTime, model.ElementStartTransaction, model.ElementGroup, model.ElementEndTransaction,
	}
	if len(script.Elements) != len(want) {
		t.Fatalf("elements = %d, want %d", len(script.Elements), len(want))
	}
	for i, k := range want {
		if script.Elements[i].Kind != k {
			t.Errorf("element %d kind = %d, want %d", i, script.Elements[i].Kind, k)
		}
	}
	if script.Elements[3].ThinkTime != 10*time.Second || script.Elements[4].Transaction != "Search" {
		t.Errorf("elements = %+v", script.Elements)
	}
	if len(h.Context().Transactions()) != 0 {
		t.Errorf("open transactions = %v", h.Context().Transactions())
	}
}

func TestActionFilterUsesOpenTransactions(t *testing.T) {
	rule := tokenRule()
	rule.ReplaceFilters = []*rulespec.ReplaceFilter{{
		RequestResponse: &rulespec.RequestResponseFilter{Action: &rulespec.TextFilter{Pattern: "Checkout"}},
	}}
	e0 := entry(0, "GET", "https://app.test/cart", "", 200, `name="token" value="K9"`)
	e1 := entry(1, "GET", "https://app.test/a?t=K9", "", 200, "")
	e2 := entry(3, "GET", "https://app.test/b?t=K9", "", 200, "")
	actions := []traffic.RecordedAction{{Name: "Checkout", State: traffic.ActionStart, Timestamp: t0.Add(2 * time.Second)}}

	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{rule}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{e0, e1, e2}}, actions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %d", len(groups))
	}
	if got := groups[1].Primary.Request.URL; got != "https://app.test/a?t=K9" {
		t.Errorf("outside Checkout url = %q", got)
	}
	if got := groups[2].Primary.Request.URL; got != "https://app.test/b?t={Token_1}" {
		t.Errorf("inside Checkout url = %q", got)
	}
}

func TestExcludeURLs(t *testing.T) {
	page := entry(0, "GET", "https://app.test/", "", 200, "")
	beacon := entry(1, "GET", "https://metrics.test/collect", "", 302, "")
	logo := entry(2, "GET", "https://app.test/LOGO.PNG", "https://app.test/", 200, "")
	next := entry(3, "GET", "https://app.test/next", "", 200, "")

	rs := &rulespec.RuleSet{ExcludeURLs: []*rulespec.ExcludeURL{{URL: "*.png"}, {URL: "https://metrics.test/*"}}}
	h := New(Config{Rules: rs})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{page, beacon, logo, next}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	groups := script.Groups()
	if len(groups) != 2 || len(groups[0].Children) != 0 {
		t.Fatalf("groups = %d", len(groups))
	}
	// 被排除的 302 不影响下一个条目的重定向判断
	if groups[1].Primary.EntryIndex != 3 {
		t.Errorf("second group primary = %d", groups[1].Primary.EntryIndex)
	}
	if st := h.Context().Stats; st.Excluded != 2 || st.Entries != 4 || st.Groups != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestParametersApplied(t *testing.T) {
	e0 := entry(0, "GET", "https://app.test/search?user=jdoe&d=2024-05-02", "", 200, "")
	rs := &rulespec.RuleSet{Parameters: []*rulespec.ParameterRule{
		{Name: "User", Replace: []*rulespec.Replace{{Kind: rulespec.ReplaceText, Text: "jdoe"}}},
		{Name: "Tomorrow", Source: rulespec.ParamSource{Kind: rulespec.SourceDate, Date: &rulespec.DateSource{Format: "YYYY-MM-DD"}},
			Replace: []*rulespec.Replace{{Kind: rulespec.ReplaceDate, Date: &rulespec.DateTemplate{Format: "YYYY-MM-DD", OffsetAmount: 1, OffsetUnit: rulespec.UnitDays}}}},
	}}
	h := New(Config{Rules: rs, Now: t0})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{e0}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := script.Groups()[0].Primary.Request.URL; got != "https://app.test/search?user={User}&d={Tomorrow}" {
		t.Errorf("url = %q", got)
	}
	if script.Bindings["Tomorrow"] != "2024-05-02" || len(script.Parameters) != 2 {
		t.Errorf("bindings = %v", script.Bindings)
	}
}

func TestRunAbortsOnRuleError(t *testing.T) {
	bad := &rulespec.CorrelationRule{
		Name:      "Broken",
		Scope:     rulespec.ScopeBody,
		Extractor: rulespec.Extractor{Kind: rulespec.ExtractorRegex, Regex: &rulespec.Regex{Pattern: `id=(\d)`, Group: 4}},
	}
	e0 := entry(0, "GET", "https://app.test/", "", 200, "id=1")
	h := New(Config{Rules: &rulespec.RuleSet{Correlations: []*rulespec.CorrelationRule{bad}}})
	script, err := h.Run(&traffic.Capture{Entries: []*traffic.Entry{e0}}, nil)
	if script != nil || err == nil {
		t.Fatal("expected the run to abort")
	}
	var pe *model.ProcessingError
	if !errors.As(err, &pe) || pe.EntryIndex != 0 || pe.URL != "https://app.test/" {
		t.Errorf("err = %v", err)
	}
	var cg *model.CaptureGroupError
	if !errors.As(err, &cg) || cg.Rule != "Broken" {
		t.Errorf("capture group error not surfaced: %v", err)
	}
}
