package har

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"time"

	"harscript/pkg/traffic"

	"github.com/tidwall/gjson"
)

// 录制文件中出现过的时间格式，按优先级排列
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05-07:00",
}

// ParseTime 按多种格式解析录制时间
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", s)
}

// LoadCapture 读取并解析 HAR 文件
func LoadCapture(path string) (*traffic.Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return ParseCapture(data)
}

// ParseCapture 将 HAR 文档转换为中立的 Capture 模型，条目保持录制顺序
func ParseCapture(data []byte) (*traffic.Capture, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("capture is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	entries := root.Get("log.entries")
	if !entries.IsArray() {
		return nil, fmt.Errorf("capture has no log.entries array")
	}

	capture := &traffic.Capture{}
	var convErr error
	entries.ForEach(func(_, v gjson.Result) bool {
		e, err := ToNeutralEntry(len(capture.Entries), v)
		if err != nil {
			convErr = err
			return false
		}
		capture.Entries = append(capture.Entries, e)
		return true
	})
	if convErr != nil {
		return nil, convErr
	}
	return capture, nil
}

// ToNeutralEntry 将单个 HAR 条目转换为中立 Entry 模型
func ToNeutralEntry(index int, v gjson.Result) (*traffic.Entry, error) {
	e := &traffic.Entry{Index: index}
	if s := v.Get("startedDateTime").String(); s != "" {
		t, err := ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", index, err)
		}
		e.StartedAt = t
	}

	reqv := v.Get("request")
	if !reqv.Exists() {
		return nil, fmt.Errorf("entry %d: missing request", index)
	}
	e.Request = ToNeutralRequest(reqv)
	if respv := v.Get("response"); respv.Exists() {
		e.Response = ToNeutralResponse(respv)
	} else {
		e.Response = traffic.NewResponse(0)
	}
	return e, nil
}

// ToNeutralRequest 转换 HAR request 对象
func ToNeutralRequest(v gjson.Result) *traffic.Request {
	req := traffic.NewRequest(v.Get("method").String(), v.Get("url").String())
	req.Headers = headers(v.Get("headers"))

	pd := v.Get("postData")
	if !pd.Exists() {
		return req
	}
	req.PostData = &traffic.PostData{
		MimeType: pd.Get("mimeType").String(),
		Text:     pd.Get("text").String(),
	}
	if params := pd.Get("params"); params.IsArray() {
		req.PostData.Params = []traffic.Param{}
		params.ForEach(func(_, p gjson.Result) bool {
			req.PostData.Params = append(req.PostData.Params, traffic.Param{
				Name:  p.Get("name").String(),
				Value: p.Get("value").String(),
			})
			return true
		})
	}
	return req
}

// ToNeutralResponse 转换 HAR response 对象，base64 编码的内容会被解码
func ToNeutralResponse(v gjson.Result) *traffic.Response {
	res := traffic.NewResponse(int(v.Get("status").Int()))
	res.StatusText = v.Get("statusText").String()
	res.Headers = headers(v.Get("headers"))
	res.RedirectURL = v.Get("redirectURL").String()
	content := v.Get("content")
	res.MimeType = content.Get("mimeType").String()
	res.Body = decodeContent(content.Get("text").String(), content.Get("encoding").String())
	return res
}

func headers(v gjson.Result) traffic.Headers {
	out := traffic.Headers{}
	v.ForEach(func(_, h gjson.Result) bool {
		out = append(out, traffic.Header{Name: h.Get("name").String(), Value: h.Get("value").String()})
		return true
	})
	return out
}

func decodeContent(text, encoding string) string {
	if encoding == "base64" && text != "" {
		if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
			return string(decoded)
		}
	}
	return text
}

// LoadActions 读取动作时间线文件
func LoadActions(path string) ([]traffic.RecordedAction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	return ParseActions(data)
}

// ParseActions 解析 {"actions":[{"name","date","state"}]} 形式的动作时间线，按时间排序
func ParseActions(data []byte) ([]traffic.RecordedAction, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("actions file is not valid JSON")
	}
	list := gjson.GetBytes(data, "actions")
	if !list.IsArray() {
		return nil, fmt.Errorf("actions file has no actions array")
	}

	var out []traffic.RecordedAction
	var parseErr error
	list.ForEach(func(k, v gjson.Result) bool {
		name := v.Get("name").String()
		state := traffic.ActionState(v.Get("state").String())
		if name == "" {
			parseErr = fmt.Errorf("actions[%d]: name is required", k.Int())
			return false
		}
		if state != traffic.ActionStart && state != traffic.ActionEnd {
			parseErr = fmt.Errorf("actions[%d]: state must be start or end, got %q", k.Int(), state)
			return false
		}
		ts, err := ParseTime(v.Get("date").String())
		if err != nil {
			parseErr = fmt.Errorf("actions[%d]: %w", k.Int(), err)
			return false
		}
		out = append(out, traffic.RecordedAction{Name: name, Timestamp: ts, State: state})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
