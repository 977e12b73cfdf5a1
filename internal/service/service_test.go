package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"harscript/internal/config"
	"harscript/internal/session"
	"harscript/internal/storage"
	"harscript/pkg/model"

	"github.com/tidwall/gjson"
)

const blueprintYAML = `
name: login flow
script:
  correlations:
    - name: Token
      boundary:
        left: 'name="token" value="'
        right: '"'
  parameters:
    - name: User
      replace: ["jdoe"]
      file:
        name: users.csv
        column: login
  excludeUrls: ["*.png"]
  files: ["data/users.csv"]
`

const captureJSON = `{"log":{"entries":[
  {"startedDateTime":"2024-05-01T12:00:00.000Z",
   "request":{"method":"GET","url":"https://app.test/login","headers":[]},
   "response":{"status":200,"headers":[],"content":{"mimeType":"text/html","text":"<input name=\"token\" value=\"XYZ\">"}}},
  {"startedDateTime":"2024-05-01T12:00:01.000Z",
   "request":{"method":"GET","url":"https://app.test/logo.png","headers":[{"name":"Referer","value":"https://app.test/login"}]},
   "response":{"status":200,"headers":[],"content":{"mimeType":"image/png","text":""}}},
  {"startedDateTime":"2024-05-01T12:00:05.000Z",
   "request":{"method":"POST","url":"https://app.test/login","headers":[{"name":"Referer","value":"https://app.test/login"},{"name":"Content-Type","value":"application/x-www-form-urlencoded"}],
              "postData":{"mimeType":"application/x-www-form-urlencoded","text":"token=XYZ&user=jdoe"}},
   "response":{"status":200,"headers":[],"content":{"mimeType":"text/html","text":"welcome"}}}
]}}`

const actionsJSON = `{"actions":[
  {"name":"Login","date":"2024-05-01T11:59:59.000Z","state":"start"},
  {"name":"Login","date":"2024-05-01T12:00:06.000Z","state":"end"}
]}`

type fixture struct {
	dir string
	req GenerateRequest
}

func newFixture(t *testing.T, blueprint string) fixture {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"blueprint.yaml": blueprint,
		"data/users.csv": "login\njdoe\nasmith\n",
		"capture.har":    captureJSON,
		"actions.json":   actionsJSON,
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fixture{dir: dir, req: GenerateRequest{
		CapturePath:   filepath.Join(dir, "capture.har"),
		BlueprintPath: filepath.Join(dir, "blueprint.yaml"),
		ActionsPath:   filepath.Join(dir, "actions.json"),
		OutputDir:     filepath.Join(dir, "out"),
		Now:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func newService(t *testing.T, sqlite bool) *Service {
	t.Helper()
	cfg := config.NewConfig()
	if sqlite {
		cfg.Sqlite.Enabled = true
		cfg.Sqlite.Dsn = filepath.Join(t.TempDir(), "runs.sqlite3")
	}
	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func readOutput(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestGenerate(t *testing.T) {
	fx := newFixture(t, blueprintYAML)
	svc := newService(t, true)

	res, err := svc.Generate(context.Background(), fx.req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Stats.Excluded != 1 || res.Stats.Groups != 1 || res.Stats.Requests != 2 || res.Stats.Transactions != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}

	out := fx.req.OutputDir
	action := readOutput(t, out, ActionFileName)
	for _, want := range []string{
		`"ParamName=Token_1"`,
		`"Body=token={Token_1}&user={User}",`,
		`lr_start_transaction("Login");`,
		`lr_end_transaction("Login", LR_AUTO);`,
	} {
		if !strings.Contains(action, want) {
			t.Errorf("Action.c missing %s", want)
		}
	}
	if strings.Contains(action, "logo.png") {
		t.Error("excluded request rendered")
	}

	prm := readOutput(t, out, "loginflow.prm")
	if !strings.Contains(prm, `Table="users.csv"`) || !strings.Contains(prm, `TotalRecords="2"`) || !strings.Contains(prm, `ColumnName="login"`) {
		t.Errorf("prm = %s", prm)
	}
	if got := readOutput(t, out, "users.csv"); !strings.HasPrefix(got, "login\n") {
		t.Errorf("data file = %q", got)
	}

	summary := readOutput(t, out, SummaryFileName)
	if gjson.Get(summary, "runId").String() != string(res.RunID) ||
		gjson.Get(summary, "stats.groups").Int() != 1 ||
		gjson.Get(summary, "bindings.Token_1").String() != "XYZ" ||
		gjson.Get(summary, "bindings.User").String() != "jdoe" {
		t.Errorf("summary = %s", summary)
	}
	if len(res.Files) != 4 {
		t.Errorf("files = %v", res.Files)
	}

	run, err := svc.Store().GetRun(context.Background(), string(res.RunID))
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunSucceeded || run.Name != "login flow" || run.Correlations != 1 {
		t.Errorf("run = %+v", run)
	}
	if sess, ok := svc.Sessions().Get(res.RunID); !ok || sess.State != session.StateSucceeded {
		t.Errorf("session = %+v", sess)
	}
}

func TestGenerateRecordsFailure(t *testing.T) {
	broken := strings.Replace(blueprintYAML, `    - name: Token
      boundary:
        left: 'name="token" value="'
        right: '"'`, `    - name: Token
      regex:
        pattern: 'value="(\w+)"'
        group: 3`, 1)
	fx := newFixture(t, broken)
	svc := newService(t, true)

	_, err := svc.Generate(context.Background(), fx.req)
	var cg *model.CaptureGroupError
	if !errors.As(err, &cg) || cg.Group != 3 {
		t.Fatalf("err = %v", err)
	}

	runs, err := svc.Store().ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}
	if runs[0].Status != storage.RunFailed || runs[0].Error == "" {
		t.Errorf("run = %+v", runs[0])
	}
	if list := svc.Sessions().List(); len(list) != 1 || list[0].State != session.StateFailed {
		t.Errorf("sessions = %+v", list)
	}
	if _, err := os.Stat(filepath.Join(fx.req.OutputDir, ActionFileName)); err == nil {
		t.Error("no output expected for a failed run")
	}
}

func TestGenerateInputErrors(t *testing.T) {
	fx := newFixture(t, blueprintYAML)
	svc := newService(t, false)

	tests := []struct {
		name   string
		mutate func(*GenerateRequest)
	}{
		{"missing output", func(r *GenerateRequest) { r.OutputDir = "" }},
		{"missing blueprint", func(r *GenerateRequest) { r.BlueprintPath = filepath.Join(fx.dir, "none.yaml") }},
		{"unknown profile", func(r *GenerateRequest) { r.Profile = "tablet" }},
		{"missing capture", func(r *GenerateRequest) { r.CapturePath = filepath.Join(fx.dir, "none.har") }},
		{"missing actions", func(r *GenerateRequest) { r.ActionsPath = filepath.Join(fx.dir, "none.json") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fx.req
			tt.mutate(&req)
			if _, err := svc.Generate(context.Background(), req); err == nil {
				t.Error("expected error")
			}
		})
	}
	if len(svc.Sessions().List()) != 0 {
		t.Error("input errors must not register runs")
	}
}

func TestGenerateCancelled(t *testing.T) {
	fx := newFixture(t, blueprintYAML)
	svc := newService(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Generate(ctx, fx.req); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestParameterFileName(t *testing.T) {
	tests := map[string]string{"login flow": "loginflow.prm", "": "script.prm", " a\tb ": "ab.prm"}
	for in, want := range tests {
		if got := ParameterFileName(in); got != want {
			t.Errorf("ParameterFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
