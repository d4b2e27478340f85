package jail

import (
	"strings"
	"testing"
)

func TestCreateArgs(t *testing.T) {
	tests := []struct {
		name    string
		opts    CreateOptions
		want    []string
		exclude []string
	}{
		{
			name: "no network",
			opts: CreateOptions{Network: NetworkNone},
			want: []string{"ip4=disable", "ip6=disable", "allow.mount=1", "enforce_statfs=1"},
		},
		{
			name:    "inherit network",
			opts:    CreateOptions{Network: NetworkInherit},
			exclude: []string{"ip4=disable", "ip6=disable", "vnet"},
		},
		{
			name: "isolated stack",
			opts: CreateOptions{Network: NetworkIsolated},
			want: []string{"vnet"},
		},
		{
			name:    "read-only root",
			opts:    CreateOptions{Network: NetworkNone, ReadOnlyRoot: true},
			want:    []string{"allow.mount=0", "enforce_statfs=2"},
			exclude: []string{"allow.mount=1"},
		},
		{
			name: "extra params",
			opts: CreateOptions{Network: NetworkNone, ExtraParams: []string{"allow.raw_sockets=1"}},
			want: []string{"allow.raw_sockets=1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := CreateArgs("claw-session-abc", "/sandboxes/claw-session-abc", tt.opts)

			joined := " " + strings.Join(args, " ") + " "
			always := []string{
				"-c",
				"name=claw-session-abc",
				"path=/sandboxes/claw-session-abc",
				"persist",
				"host.hostname=claw-session-abc",
				"children.max=0",
				"securelevel=3",
			}
			for _, param := range append(always, tt.want...) {
				if !strings.Contains(joined, " "+param+" ") {
					t.Errorf("args missing %q: %v", param, args)
				}
			}
			for _, param := range tt.exclude {
				if strings.Contains(joined, " "+param+" ") {
					t.Errorf("args should not contain %q: %v", param, args)
				}
			}
		})
	}
}

func TestWrapScript(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		dir  string
		env  map[string]string
		want string
	}{
		{
			name: "dir only",
			argv: []string{"make", "test"},
			dir:  "/workspace",
			want: "cd '/workspace' && exec 'make' 'test'",
		},
		{
			name: "env sorted",
			argv: []string{"env"},
			env:  map[string]string{"ZED": "z", "ALPHA": "a"},
			want: "export ALPHA='a' && export ZED='z' && exec 'env'",
		},
		{
			name: "dir and env",
			argv: []string{"sh"},
			dir:  "/tmp",
			env:  map[string]string{"K": "v"},
			want: "cd '/tmp' && export K='v' && exec 'sh'",
		},
		{
			name: "tokens quoted against reinterpretation",
			argv: []string{"echo", "hello; rm -rf /"},
			dir:  "/",
			want: "cd '/' && exec 'echo' 'hello; rm -rf /'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapScript(tt.argv, tt.dir, tt.env); got != tt.want {
				t.Errorf("wrapScript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"", "''"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
