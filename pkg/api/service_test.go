package api

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateThroughService(t *testing.T) {
	svc, err := NewService(nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	path := filepath.Join(t.TempDir(), "bp.yaml")
	data := "name: demo\nscript:\n  correlations:\n    - name: Sid\n      regex: 'sid=(\\w+)'\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := svc.Validate(path, "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rs.Name != "demo" || len(rs.Correlations) != 1 {
		t.Errorf("rule set = %+v", rs)
	}
	if _, err := svc.Validate(path, "mobile"); err == nil {
		t.Error("unknown profile must fail")
	}
}
