package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGraphServeImpliesHTMLFormat(t *testing.T) {
	root := newProject(t)
	newXOR(t, root)

	// Use io.Pipe so we can read server output without race conditions.
	// If --serve is honored, the server blocks and writes "Graph server running at ...".
	// If --serve is ignored, DOT text is printed and the command returns.
	pr, pw := io.Pipe()

	go func() {
		rootCmd := newTestRootCmd()
		rootCmd.AddCommand(newGraphCmd())
		rootCmd.SetOut(pw)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"graph", "xor", "--serve", "--no-open", "--root", root})
		rootCmd.Execute()
		pw.Close()
	}()

	type readResult struct {
		data string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := pr.Read(buf)
		ch <- readResult{string(buf[:n]), err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && r.err != io.EOF {
			t.Fatalf("read error: %v", r.err)
		}
		if strings.Contains(r.data, "digraph") {
			t.Fatalf("--serve was ignored: got raw DOT output instead of starting server: %s", r.data)
		}
		if !strings.Contains(r.data, "Graph server running at") {
			t.Fatalf("expected 'Graph server running at', got: %q", r.data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for server output")
	}

	// Close the pipe reader to unblock the server goroutine.
	pr.Close()
}

func TestGraphDefaultFormatIsDOT(t *testing.T) {
	root := newProject(t)
	newXOR(t, root)

	rootCmd := newTestRootCmd()
	rootCmd.AddCommand(newGraphCmd())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"graph", "xor", "--root", root})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("graph failed: %v", err)
	}

	dot := out.String()
	if !strings.HasPrefix(dot, "digraph evonet {") {
		t.Errorf("expected DOT output, got: %q", dot)
	}
	if got := strings.Count(dot, " -> "); got != 9 {
		t.Errorf("DOT has %d edges, want 9", got)
	}
}

func TestGraphJSONAndHTML(t *testing.T) {
	root := newProject(t)
	newXOR(t, root)
	dir := t.TempDir()

	var graph map[string]interface{}
	if err := json.Unmarshal([]byte(mustRun(t, root, "graph", "xor", "--format", "json")), &graph); err != nil {
		t.Fatalf("invalid JSON graph: %v", err)
	}
	if graph["node_count"] != 6.0 || graph["edge_count"] != 9.0 {
		t.Errorf("node_count = %v edge_count = %v", graph["node_count"], graph["edge_count"])
	}

	jsonPath := filepath.Join(dir, "xor.json")
	if out := mustRun(t, root, "graph", "xor", "--format", "json", "-o", jsonPath); out != "" {
		t.Errorf("stdout should be empty when writing a file, got %q", out)
	}
	if data, err := os.ReadFile(jsonPath); err != nil || !json.Valid(data) {
		t.Errorf("json file not written correctly: %v", err)
	}

	htmlPath := filepath.Join(dir, "xor.html")
	out := mustRun(t, root, "graph", "xor", "--format", "html", "-o", htmlPath, "--no-open")
	if !strings.Contains(out, "Graph written to "+htmlPath) {
		t.Errorf("unexpected output %q", out)
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("html not written: %v", err)
	}
	if !strings.HasPrefix(string(html), "<!DOCTYPE html>") {
		t.Errorf("html output does not start with a doctype")
	}
	if strings.Contains(string(html), "/api/activate") {
		t.Error("static html should not reference the activation API")
	}

	if _, err := runCLI(t, root, "graph", "xor", "--format", "svg"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
