package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs []string
		wantNil  bool
	}{
		{"/ensure session:abc", "/ensure", []string{"session:abc"}, false},
		{"/exec shared ls -la /workspace", "/exec", []string{"shared", "ls", "-la", "/workspace"}, false},
		{"/destroy agent:researcher", "/destroy", []string{"agent:researcher"}, false},
		{"/recreate session:abc", "/recreate", []string{"session:abc"}, false},
		{"/connect shared", "/connect", []string{"shared"}, false},
		{"/quit", "/quit", nil, false},
		{"  /ensure shared  ", "/ensure", []string{"shared"}, false},
		{"not a command", "", nil, true},
		{"", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd := ParseCommand(tt.input)
			if tt.wantNil {
				if cmd != nil {
					t.Errorf("expected nil, got %+v", cmd)
				}
				return
			}
			if cmd == nil {
				t.Fatal("expected command, got nil")
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.wantName)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Fatalf("Args = %v, want %v", cmd.Args, tt.wantArgs)
			}
			for i := range cmd.Args {
				if cmd.Args[i] != tt.wantArgs[i] {
					t.Errorf("Args[%d] = %q, want %q", i, cmd.Args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
