package inspect

import (
	"strings"
	"testing"
)

func TestMatch_SQLInjection(t *testing.T) {
	cases := []string{
		"Robert'); DROP TABLE users;--",
		"1 OR 1=1",
		"' or '1'='1",
		"UNION SELECT username, password FROM accounts",
		"x'; exec xp_cmdshell('dir')",
	}
	for _, c := range cases {
		kind, ok := Match(c)
		if !ok {
			t.Fatalf("Match(%q) = clean, want flagged", c)
		}
		if kind != KindSQLInjection {
			t.Fatalf("Match(%q) kind = %s, want %s", c, kind, KindSQLInjection)
		}
	}
}

func TestMatch_XSS(t *testing.T) {
	cases := []string{
		"<script>alert(1)</script>",
		"<IMG src=x onerror=alert(1)>",
		"javascript:alert(document.cookie)",
		"<iframe src=//evil.example></iframe>",
	}
	for _, c := range cases {
		kind, ok := Match(c)
		if !ok || kind != KindXSS {
			t.Fatalf("Match(%q) = (%s, %v), want (%s, true)", c, kind, ok, KindXSS)
		}
	}
}

func TestMatch_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"..\\..\\windows\\system32",
		"%2e%2e%2fsecret",
	}
	for _, c := range cases {
		kind, ok := Match(c)
		if !ok || kind != KindPathTraversal {
			t.Fatalf("Match(%q) = (%s, %v), want (%s, true)", c, kind, ok, KindPathTraversal)
		}
	}
}

func TestMatch_CommandInjection(t *testing.T) {
	cases := []string{
		"8.8.8.8; cat /etc/hosts",
		"name `whoami`",
		"a && rm -rf /tmp/x",
	}
	for _, c := range cases {
		kind, ok := Match(c)
		if !ok || kind != KindCommandInjection {
			t.Fatalf("Match(%q) = (%s, %v), want (%s, true)", c, kind, ok, KindCommandInjection)
		}
	}
}

func TestMatch_CleanInput(t *testing.T) {
	cases := []string{
		"Jane O'Brien",
		"patient with ongoing treatment",
		"select a specialist from the list",
		"order #123 and invoice 456",
		"results for dr. select-wood",
		"",
	}
	for _, c := range cases {
		if kind, ok := Match(c); ok {
			t.Fatalf("Match(%q) flagged as %s, want clean", c, kind)
		}
	}
}

func TestScan_NestedJSONBody(t *testing.T) {
	d := NewDetector(ModeBlock)
	body := map[string]interface{}{
		"name": "Robert'); DROP TABLE users;--",
		"contact": map[string]interface{}{
			"email": "robert@example.com",
			"notes": []interface{}{"benign", "<script>steal()</script>"},
		},
		"age":      float64(44),
		"verified": true,
	}
	findings := d.Scan("body", body)
	if len(findings) != 2 {
		t.Fatalf("Scan returned %d findings, want 2: %+v", len(findings), findings)
	}
	byField := map[string]Kind{}
	for _, f := range findings {
		byField[f.Field] = f.Kind
	}
	if byField["body.name"] != KindSQLInjection {
		t.Errorf("body.name kind = %s, want %s", byField["body.name"], KindSQLInjection)
	}
	if byField["body.contact.notes"] != KindXSS {
		t.Errorf("body.contact.notes kind = %s, want %s", byField["body.contact.notes"], KindXSS)
	}
}

func TestScan_QueryValues(t *testing.T) {
	d := NewDetector(ModeBlock)
	query := map[string][]string{
		"search": {"flu symptoms"},
		"file":   {"../../etc/passwd"},
	}
	findings := d.Scan("query", query)
	if len(findings) != 1 {
		t.Fatalf("Scan returned %d findings, want 1", len(findings))
	}
	if findings[0].Field != "query.file" || findings[0].Kind != KindPathTraversal {
		t.Fatalf("unexpected finding %+v", findings[0])
	}
}

func TestSanitize_StripsMatchedSubstrings(t *testing.T) {
	d := NewDetector(ModeSanitize)
	in := map[string]interface{}{
		"bio":  "hello <script>alert(1)</script> world",
		"age":  float64(30),
		"tags": []interface{}{"ok", "javascript:run()"},
	}
	out, ok := d.Sanitize(in).(map[string]interface{})
	if !ok {
		t.Fatal("Sanitize changed the value's type")
	}
	if strings.Contains(out["bio"].(string), "<script") {
		t.Errorf("bio still contains script tag: %q", out["bio"])
	}
	if out["age"] != float64(30) {
		t.Errorf("age was altered: %v", out["age"])
	}
	if in["bio"] != "hello <script>alert(1)</script> world" {
		t.Error("Sanitize modified its input")
	}
	tags := out["tags"].([]interface{})
	if strings.Contains(tags[1].(string), "javascript:") {
		t.Errorf("tag still contains scheme: %q", tags[1])
	}
}

func TestNewDetector_DefaultsToBlock(t *testing.T) {
	if m := NewDetector("").Mode(); m != ModeBlock {
		t.Fatalf("Mode() = %s, want %s", m, ModeBlock)
	}
}
