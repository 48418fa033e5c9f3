package topology

import (
	"bytes"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	g, err := Build(testStack())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		format Format
		want   []string
	}{
		{format: FormatDOT, want: []string{"digraph", "network", "security", "http-listener"}},
		{format: FormatMermaid, want: []string{"http-listener", "app-attachment"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := RenderString(g, tt.format)
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}

	var buf bytes.Buffer
	if err := Render(g, "svg", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
