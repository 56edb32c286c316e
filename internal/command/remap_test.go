package command

import (
	"testing"
)

func TestRemapPath(t *testing.T) {
	tests := []struct {
		name  string
		rules []RemapRule
		want  string
	}{
		{
			name: "exclusive match stops evaluation",
			rules: []RemapRule{
				{From: "path", To: "new_path", Exclusive: true},
				{From: "file", To: "new_file", Exclusive: true},
			},
			want: "new_path/to/file.rb",
		},
		{
			name: "non-matching rule falls through",
			rules: []RemapRule{
				{From: "paxth", To: "new_path", Exclusive: true},
				{From: "file", To: "new_file", Exclusive: true},
			},
			want: "path/to/new_file.rb",
		},
		{
			name: "non-exclusive match continues",
			rules: []RemapRule{
				{From: "path", To: "new_path", Exclusive: false},
				{From: "file", To: "new_file", Exclusive: true},
				{From: "to", To: "new_to", Exclusive: false},
			},
			want: "new_path/to/new_file.rb",
		},
		{
			name: "regex exclusive match stops evaluation",
			rules: []RemapRule{
				{From: "^path", To: "new_path", Regex: true, Exclusive: true},
				{From: "f..e", To: "new_file", Regex: true, Exclusive: true},
			},
			want: "new_path/to/file.rb",
		},
		{
			name: "regex non-matching rule falls through",
			rules: []RemapRule{
				{From: "path$", To: "new_path", Regex: true, Exclusive: true},
				{From: "f..e", To: "new_file", Regex: true, Exclusive: true},
			},
			want: "path/to/new_file.rb",
		},
		{
			name: "regex non-exclusive match continues",
			rules: []RemapRule{
				{From: "^path", To: "new_path", Regex: true, Exclusive: false},
				{From: "f..e", To: "new_file", Regex: true, Exclusive: true},
				{From: "to", To: "new_to", Regex: true, Exclusive: false},
			},
			want: "new_path/to/new_file.rb",
		},
		{
			name: "regex group references",
			rules: []RemapRule{
				{From: `path/(\w+)/file`, To: "one_$1_three", Regex: true, Exclusive: true},
			},
			want: "one_to_three.rb",
		},
		{
			name: "only first occurrence replaced",
			rules: []RemapRule{
				{From: "t", To: "T", Exclusive: true},
			},
			want: "paTh/to/file.rb",
		},
		{
			name: "no rules",
			want: "path/to/file.rb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemapPath("path/to/file.rb", tt.rules)
			if err != nil {
				t.Fatalf("RemapPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RemapPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemapPathInvalidRegex(t *testing.T) {
	_, err := RemapPath("path/to/file.rb", []RemapRule{{From: "(", Regex: true}})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRemapRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    RemapRule
		wantErr bool
	}{
		{"plain", RemapRule{From: "app", To: "/srv/app"}, false},
		{"regex", RemapRule{From: `^/home/\w+`, To: "/app", Regex: true}, false},
		{"empty from", RemapRule{To: "x"}, true},
		{"bad regex", RemapRule{From: "[", Regex: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
