package substitution

import (
	"testing"

	"harscript/internal/rules"
	"harscript/pkg/rulespec"
	"harscript/pkg/traffic"
)

func formRequest() *traffic.Request {
	req := traffic.NewRequest("POST", "https://app.test/login?sid=abc123")
	req.Headers = traffic.Headers{
		{Name: "Cookie", Value: "sid=abc123; theme=dark"},
		{Name: "Accept", Value: "*/*"},
	}
	req.PostData = &traffic.PostData{
		MimeType: "application/x-www-form-urlencoded",
		Params:   []traffic.Param{{Name: "sid", Value: "abc123"}, {Name: "user", Value: "jdoe"}},
	}
	return req
}

func TestSubstituteRoundTrip(t *testing.T) {
	req := traffic.NewRequest("POST", "https://app.test/save")
	req.PostData = &traffic.PostData{Text: "sid=abc123&x=1"}

	Substitute(req, "Sess", "abc123", nil, Options{})
	if got := req.PostData.Text; got != "sid={Sess}&x=1" {
		t.Fatalf("body = %q", got)
	}

	before := req.Clone()
	Substitute(req, "Other", "zzz", nil, Options{})
	if req.PostData.Text != before.PostData.Text || req.URL != before.URL {
		t.Errorf("substituting an absent literal changed the request: %+v", req)
	}
}

func TestSubstituteScopes(t *testing.T) {
	tests := []struct {
		name       string
		scope      rulespec.ReplaceScope
		wantURL    string
		wantCookie string
		wantParam  string
	}{
		{"all", rulespec.ReplaceAll, "https://app.test/login?sid={Sess}", "sid={Sess}; theme=dark", "{Sess}"},
		{"url", rulespec.ReplaceURL, "https://app.test/login?sid={Sess}", "sid=abc123; theme=dark", "abc123"},
		{"headers", rulespec.ReplaceHeaders, "https://app.test/login?sid=abc123", "sid={Sess}; theme=dark", "abc123"},
		{"body", rulespec.ReplaceBody, "https://app.test/login?sid=abc123", "sid=abc123; theme=dark", "{Sess}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := formRequest()
			Substitute(req, "Sess", "abc123", []*rulespec.ReplaceFilter{{Scope: tt.scope}}, Options{})
			if req.URL != tt.wantURL {
				t.Errorf("url = %q", req.URL)
			}
			if got := req.Headers.Get("cookie"); got != tt.wantCookie {
				t.Errorf("cookie = %q", got)
			}
			if len(req.Headers) != 2 || req.Headers[1].Name != "Accept" {
				t.Errorf("headers not re-split: %+v", req.Headers)
			}
			if !req.PostData.IsForm() || req.PostData.Params[0].Value != tt.wantParam || req.PostData.Params[1].Value != "jdoe" {
				t.Errorf("params = %+v", req.PostData.Params)
			}
		})
	}
}

func TestSubstituteBoundaryAndCase(t *testing.T) {
	req := traffic.NewRequest("GET", "https://app.test/a?ID=42&page=42")
	on := true
	filters := []*rulespec.ReplaceFilter{{
		IgnoreCase: &on,
		Boundary:   &rulespec.Boundary{Left: &rulespec.BoundarySide{Text: "id="}},
	}}
	Substitute(req, "Id", "42", filters, Options{})
	if req.URL != "https://app.test/a?id={Id}&page=42" {
		t.Errorf("url = %q", req.URL)
	}

	req = traffic.NewRequest("GET", "https://app.test/a?ID=42")
	Substitute(req, "Id", "42", []*rulespec.ReplaceFilter{{Boundary: &rulespec.Boundary{Left: &rulespec.BoundarySide{Text: "id="}}}}, Options{})
	if req.URL != "https://app.test/a?ID=42" {
		t.Errorf("case sensitive boundary should not match, url = %q", req.URL)
	}

	req = traffic.NewRequest("GET", "https://app.test/a?t=AbC")
	Substitute(req, "T", "abc", nil, Options{IgnoreCase: true})
	if req.URL != "https://app.test/a?t={T}" {
		t.Errorf("default ignoreCase not applied, url = %q", req.URL)
	}
}

func TestSubstituteRequestResponseFilter(t *testing.T) {
	filter := []*rulespec.ReplaceFilter{{
		RequestResponse: &rulespec.RequestResponseFilter{Methods: []rulespec.MethodFilter{{Method: "GET"}}},
	}}

	req := formRequest()
	Substitute(req, "Sess", "abc123", filter, Options{Eval: rules.NewEvalContext(nil)})
	if req.URL != "https://app.test/login?sid=abc123" {
		t.Errorf("POST request must not be rewritten by a GET-only filter, url = %q", req.URL)
	}

	// 过滤器针对原始请求求值
	original := traffic.NewRequest("GET", "https://app.test/x?sid=abc123")
	req = traffic.NewRequest("POST", "https://app.test/x?sid=abc123")
	Substitute(req, "Sess", "abc123", filter, Options{Original: original, Eval: rules.NewEvalContext(nil)})
	if req.URL != "https://app.test/x?sid={Sess}" {
		t.Errorf("url = %q", req.URL)
	}
}

func TestSubstituteOccurrences(t *testing.T) {
	filters := []*rulespec.ReplaceFilter{{Occurrences: []rulespec.Range{{From: 2}}}}
	counters := map[*rulespec.ReplaceFilter]int{}

	var urls []string
	for _, u := range []string{"https://a.test/?v=7", "https://a.test/none", "https://a.test/?v=7", "https://a.test/?v=7"} {
		req := traffic.NewRequest("GET", u)
		Substitute(req, "V", "7", filters, Options{Counters: counters})
		urls = append(urls, req.URL)
	}
	want := []string{"https://a.test/?v=7", "https://a.test/none", "https://a.test/?v={V}", "https://a.test/?v=7"}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("request %d url = %q, want %q", i, urls[i], want[i])
		}
	}
}
