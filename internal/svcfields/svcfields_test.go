package svcfields

import "testing"

func TestSubsystemSkipsEmptyParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parts []string
		want  string
	}{
		{parts: nil, want: ""},
		{parts: []string{"mcp", "", "tool"}, want: "mcp.tool"},
		{parts: []string{".client.", " crater "}, want: "client.crater"},
		{parts: []string{ToolDispatch, "create_customer"}, want: "mcp.tool.dispatch.create_customer"},
	}
	for _, tc := range tests {
		if got := Subsystem(tc.parts...); got != tc.want {
			t.Fatalf("Subsystem(%q) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}

func TestWithSubsystemNilLogger(t *testing.T) {
	t.Parallel()

	if logger := WithSubsystem(nil, SessionAuth); logger == nil {
		t.Fatal("expected non-nil logger")
	}
}
