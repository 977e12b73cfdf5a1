package traffic

import (
	"strings"
	"time"
)

// Header 单个 HTTP 头部，保留录制时的名称大小写
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers 有序头部列表
type Headers []Header

// Get 获取指定 Header 的值（大小写不敏感，取第一个）
func (h Headers) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup 查找指定 Header，返回值与是否存在
func (h Headers) Lookup(name string) (string, bool) {
	for _, hd := range h {
		if strings.EqualFold(hd.Name, name) {
			return hd.Value, true
		}
	}
	return "", false
}

// String 序列化为头部文本块，每个头部以 "\n名称: 值" 形式拼接
func (h Headers) String() string {
	var b strings.Builder
	for _, hd := range h {
		b.WriteByte('\n')
		b.WriteString(hd.Name)
		b.WriteString(": ")
		b.WriteString(hd.Value)
	}
	return b.String()
}

// Clone 复制头部列表
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// ParseHeaders 将 String 生成的文本块重新拆分为头部列表
func ParseHeaders(block string) Headers {
	block = strings.TrimPrefix(block, "\n")
	if block == "" {
		return Headers{}
	}
	lines := strings.Split(block, "\n")
	out := make(Headers, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			name, value = line, ""
		}
		out = append(out, Header{Name: name, Value: value})
	}
	return out
}

// Param 表单参数
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData 请求体：原始文本或拆分后的表单参数
type PostData struct {
	MimeType string  `json:"mimeType"`
	Text     string  `json:"text"`
	Params   []Param `json:"params"`
}

// IsForm 是否以表单参数形式录制
func (p *PostData) IsForm() bool {
	return p != nil && p.Text == "" && p.Params != nil
}

// Request 录制的请求
type Request struct {
	Method   string    `json:"method"`
	URL      string    `json:"url"`
	Headers  Headers   `json:"headers"`
	PostData *PostData `json:"postData,omitempty"`
}

// Body 返回解码后的请求体文本，表单参数以 name=value&... 拼接
func (r *Request) Body() string {
	if r.PostData == nil {
		return ""
	}
	if r.PostData.Text != "" {
		return r.PostData.Text
	}
	parts := make([]string, 0, len(r.PostData.Params))
	for _, p := range r.PostData.Params {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, "&")
}

// RewriteBody 以文本形式改写请求体，并保持原有的文本/表单形态
func (r *Request) RewriteBody(fn func(string) string) {
	switch {
	case r.PostData == nil:
		return
	case r.PostData.Text != "":
		r.PostData.Text = fn(r.PostData.Text)
	case r.PostData.Params != nil:
		body := r.Body()
		r.PostData.Params = []Param{}
		if body == "" {
			return
		}
		for _, token := range strings.Split(fn(body), "&") {
			name, value, _ := strings.Cut(token, "=")
			r.PostData.Params = append(r.PostData.Params, Param{Name: name, Value: value})
		}
	}
}

// Clone 深拷贝请求，用于保留替换前的原始请求
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{Method: r.Method, URL: r.URL, Headers: r.Headers.Clone()}
	if r.PostData != nil {
		pd := *r.PostData
		if r.PostData.Params != nil {
			pd.Params = make([]Param, len(r.PostData.Params))
			copy(pd.Params, r.PostData.Params)
		}
		out.PostData = &pd
	}
	return out
}

// Response 录制的响应
type Response struct {
	Status      int     `json:"status"`
	StatusText  string  `json:"statusText"`
	Headers     Headers `json:"headers"`
	Body        string  `json:"body"`
	MimeType    string  `json:"mimeType"`
	RedirectURL string  `json:"redirectURL,omitempty"`
}

// Entry 一次请求/响应交换
type Entry struct {
	Index     int       `json:"index"`
	StartedAt time.Time `json:"startedDateTime"`
	Request   *Request  `json:"request"`
	Response  *Response `json:"response"`
}

// Referer 返回请求的 Referer 头
func (e *Entry) Referer() string {
	if e == nil || e.Request == nil {
		return ""
	}
	return e.Request.Headers.Get("Referer")
}

// Capture 按录制顺序排列的交换日志
type Capture struct {
	Entries []*Entry `json:"entries"`
}

// ActionState 动作事件状态
type ActionState string

const (
	ActionStart ActionState = "start"
	ActionEnd   ActionState = "end"
)

// RecordedAction 录制期间记录的动作开始/结束事件
type RecordedAction struct {
	Name      string      `json:"name"`
	Timestamp time.Time   `json:"date"`
	State     ActionState `json:"state"`
}

// NewRequest 创建初始化请求对象
func NewRequest(method, url string) *Request {
	return &Request{Method: method, URL: url, Headers: Headers{}}
}

// NewResponse 创建初始化响应对象
func NewResponse(status int) *Response {
	return &Response{Status: status, Headers: Headers{}}
}
