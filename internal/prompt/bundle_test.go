package prompt

import (
	"strings"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"prompts/input_guardian.yml": &fstest.MapFile{Data: []byte(
			"system: You are a strict security reviewer.\nuser: |\n  <policies>{policies}</policies>\n  <input>{input}</input>\n",
		)},
		"prompts/honeypot.yml": &fstest.MapFile{Data: []byte(
			"system: You are a helpful assistant.\nuser: '{input}'\n",
		)},
	}
}

func TestLoadBundleAndRender(t *testing.T) {
	bundle, err := LoadBundle(testFS(), "prompts", "guardian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	system, user, err := bundle.Render("input_guardian", map[string]string{
		"policies": "- competitors",
		"input":    "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "You are a strict security reviewer." {
		t.Fatalf("unexpected system prompt: %q", system)
	}
	if !strings.Contains(user, "<input>hello</input>") {
		t.Fatalf("expected rendered input, got %q", user)
	}
}

func TestRenderMissingValue(t *testing.T) {
	bundle, err := LoadBundle(testFS(), "prompts", "guardian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := bundle.Render("input_guardian", map[string]string{"input": "x"}); err == nil {
		t.Fatalf("expected error for missing template value")
	}
}

func TestRenderUnknownPrompt(t *testing.T) {
	bundle, err := LoadBundle(testFS(), "prompts", "guardian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := bundle.Render("missing", nil); err == nil {
		t.Fatalf("expected error for unknown prompt")
	}
}

func TestLoadBundleRejectsTemplatedSystem(t *testing.T) {
	fsys := fstest.MapFS{
		"prompts/bad.yml": &fstest.MapFile{Data: []byte("system: 'hello {name}'\nuser: '{input}'\n")},
	}
	if _, err := LoadBundle(fsys, "prompts", "guardian"); err == nil {
		t.Fatalf("expected error for templated system prompt")
	}
}

func TestLoadBundleEmptyDir(t *testing.T) {
	if _, err := LoadBundle(fstest.MapFS{}, "prompts", "guardian"); err == nil {
		t.Fatalf("expected error for empty prompt dir")
	}
}

func TestFormatTemplate(t *testing.T) {
	out, err := FormatTemplate("a {x} b {{literal}} {y}", map[string]string{"x": "1", "y": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a 1 b {literal} 2" {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := FormatTemplate("broken {x", nil); err == nil {
		t.Fatalf("expected error for unterminated placeholder")
	}
}

func TestWrapXML(t *testing.T) {
	wrapped := WrapXML("input", `<script>&"'`)
	if wrapped != "<input>&lt;script&gt;&amp;&quot;&apos;</input>" {
		t.Fatalf("unexpected output: %q", wrapped)
	}
}
