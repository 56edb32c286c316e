package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

type fakeSinks map[models.Framework]string

func (f fakeSinks) Path(framework models.Framework) (string, error) {
	path, ok := f[framework]
	if !ok {
		return "", errors.New("no sink")
	}
	return path, nil
}

var testSinks = fakeSinks{
	models.FrameworkRSpec:    "/tmp/rspec.json",
	models.FrameworkMinitest: "/tmp/minitest.txt",
}

func posixOptions() Options {
	return Options{
		RSpecCommand:    "bundle exec rspec",
		MinitestCommand: "bundle exec rails t",
		RSpecFormat:     FormatProgress,
		Shell:           ShellPOSIX,
		Debugger:        DebuggerRdbg,
		RSpecCapture:    true,
		MinitestCapture: true,
	}
}

func TestBuildRSpecCommand(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		target models.Target
		want   string
	}{
		{
			name:   "single line",
			target: models.Target{File: "/app/spec/user_spec.rb", Line: 12},
			want:   "bundle exec rspec -f p -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb:12'",
		},
		{
			name:   "whole file documentation format",
			mutate: func(o *Options) { o.RSpecFormat = FormatDocumentation },
			target: models.Target{File: "/app/spec/user_spec.rb"},
			want:   "bundle exec rspec -f d -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb'",
		},
		{
			name:   "failed only",
			target: models.Target{File: "/app/spec/user_spec.rb", FailedOnly: true},
			want:   "bundle exec rspec --only-failures -f p -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb'",
		},
		{
			name:   "capture disabled",
			mutate: func(o *Options) { o.RSpecCapture = false },
			target: models.Target{File: "/app/spec/user_spec.rb", Line: 3},
			want:   "bundle exec rspec -f p '/app/spec/user_spec.rb:3'",
		},
		{
			name: "env prefix sorted",
			mutate: func(o *Options) {
				o.RSpecEnv = map[string]string{"RAILS_ENV": "test", "COVERAGE": "on", "OPTS": "a b"}
			},
			target: models.Target{File: "/app/spec/user_spec.rb", Line: 3},
			want:   "COVERAGE=on OPTS='a b' RAILS_ENV=test bundle exec rspec -f p -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb:3'",
		},
		{
			name: "change directory with project path",
			mutate: func(o *Options) {
				o.ChangeDirectory = true
				o.ProjectPath = "/app"
			},
			target: models.Target{File: "/app/spec/user_spec.rb", Line: 3},
			want:   "(cd '/app' && bundle exec rspec -f p -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb:3')",
		},
		{
			name: "remapped path",
			mutate: func(o *Options) {
				o.RewriteTestPaths = []RemapRule{{From: "/app/", To: "/srv/", Exclusive: true}}
			},
			target: models.Target{File: "/app/spec/user_spec.rb", Line: 3},
			want:   "bundle exec rspec -f p -f j --out '/tmp/rspec.json' '/srv/spec/user_spec.rb:3'",
		},
		{
			name: "powershell",
			mutate: func(o *Options) {
				o.Shell = ShellPowerShell
				o.ChangeDirectory = true
				o.ProjectPath = `C:\app`
				o.RSpecEnv = map[string]string{"RAILS_ENV": "test"}
			},
			target: models.Target{File: `C:\app\spec\user_spec.rb`, Line: 3},
			want: `Push-Location "C:\app"; $env:RAILS_ENV="test"; bundle exec rspec -f p -f j --out "/tmp/rspec.json" "C:\app\spec\user_spec.rb:3"; Pop-Location`,
		},
		{
			name: "bash on windows uses a subshell",
			mutate: func(o *Options) {
				o.Shell = ShellBash
				o.ChangeDirectory = true
				o.ProjectPath = "/c/app"
			},
			target: models.Target{File: "/c/app/spec/user_spec.rb"},
			want:   `(cd "/c/app"; bundle exec rspec -f p -f j --out "/tmp/rspec.json" "/c/app/spec/user_spec.rb")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := posixOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			exe, err := NewBuilder(opts, nil, testSinks).Build(tt.target, models.ModeRun)
			require.NoError(t, err)
			assert.Equal(t, models.FrameworkRSpec, exe.Framework)
			assert.Nil(t, exe.Launch)
			assert.Equal(t, tt.want, exe.Command)
		})
	}
}

func TestBuildMinitestCommand(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		target models.Target
		want   string
	}{
		{
			name:   "whole file",
			target: models.Target{File: "/app/test/user_test.rb"},
			want: "echo '/app/test/user_test.rb' > '/tmp/minitest.txt' && echo 'ALL' >> '/tmp/minitest.txt' && " +
				"bundle exec rails t '/app/test/user_test.rb' | tee -a '/tmp/minitest.txt'",
		},
		{
			name:   "single line",
			target: models.Target{File: "/app/test/user_test.rb", Line: 7},
			want: "echo '/app/test/user_test.rb' > '/tmp/minitest.txt' && echo '7' >> '/tmp/minitest.txt' && " +
				"bundle exec rails t '/app/test/user_test.rb:7' | tee -a '/tmp/minitest.txt'",
		},
		{
			name:   "inline line",
			target: models.Target{File: "/app/test/user_test.rb", Line: 7, Inline: true},
			want: "echo '/app/test/user_test.rb' > '/tmp/minitest.txt' && echo '7 true' >> '/tmp/minitest.txt' && " +
				"bundle exec rails t '/app/test/user_test.rb:7' | tee -a '/tmp/minitest.txt'",
		},
		{
			name:   "context uses name filter",
			target: models.Target{File: "/app/test/user_test.rb", Line: 2, Name: "UserTest", ContextChildLines: []int{7, 11}},
			want: "echo '/app/test/user_test.rb' > '/tmp/minitest.txt' && echo '[7,11]' >> '/tmp/minitest.txt' && " +
				`bundle exec rails t '/app/test/user_test.rb' -- -n "/(^|::)UserTest(::|#)/" | tee -a '/tmp/minitest.txt'`,
		},
		{
			name:   "capture disabled",
			mutate: func(o *Options) { o.MinitestCapture = false },
			target: models.Target{File: "/app/test/user_test.rb", Line: 7},
			want:   "bundle exec rails t '/app/test/user_test.rb:7'",
		},
		{
			name: "header keeps local path when remapped",
			mutate: func(o *Options) {
				o.MinitestCapture = true
				o.RewriteTestPaths = []RemapRule{{From: "/app/", To: "/srv/", Exclusive: true}}
				o.ChangeDirectory = true
				o.ProjectPath = "/app"
			},
			target: models.Target{File: "/app/test/user_test.rb"},
			want: "(cd '/app' && echo '/app/test/user_test.rb' > '/tmp/minitest.txt' && echo 'ALL' >> '/tmp/minitest.txt' && " +
				"bundle exec rails t '/srv/test/user_test.rb' | tee -a '/tmp/minitest.txt')",
		},
		{
			name:   "powershell tee",
			mutate: func(o *Options) { o.Shell = ShellPowerShell },
			target: models.Target{File: `C:\app\test\user_test.rb`},
			want: `echo "C:\app\test\user_test.rb" > "/tmp/minitest.txt"; echo "ALL" >> "/tmp/minitest.txt"; ` +
				`bundle exec rails t "C:\app\test\user_test.rb" | Tee-Object -Append -FilePath "/tmp/minitest.txt"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := posixOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			exe, err := NewBuilder(opts, nil, testSinks).Build(tt.target, models.ModeRun)
			require.NoError(t, err)
			assert.Equal(t, models.FrameworkMinitest, exe.Framework)
			assert.Equal(t, tt.want, exe.Command)
		})
	}
}

func TestBuildRequiresWorkspaceForChangeDirectory(t *testing.T) {
	opts := posixOptions()
	opts.ChangeDirectory = true

	_, err := NewBuilder(opts, nil, testSinks).Build(models.Target{File: "/app/spec/a_spec.rb"}, models.ModeRun)
	assert.ErrorIs(t, err, workspace.ErrNoWorkspace)

	_, err = NewBuilder(opts, workspace.NewDirWorkspace(), testSinks).Build(models.Target{File: "/app/test/a_test.rb"}, models.ModeDebug)
	assert.ErrorIs(t, err, workspace.ErrNoWorkspace)

	root := t.TempDir()
	exe, err := NewBuilder(opts, workspace.NewDirWorkspace(root), testSinks).Build(models.Target{File: "/app/spec/a_spec.rb"}, models.ModeRun)
	require.NoError(t, err)
	assert.Contains(t, exe.Command, "(cd '"+root+"' && ")
}

func TestBuildRejectsNonTestFile(t *testing.T) {
	_, err := NewBuilder(posixOptions(), nil, testSinks).Build(models.Target{File: "/app/lib/user.rb"}, models.ModeRun)
	assert.Error(t, err)
}

func TestBuildSinkFailure(t *testing.T) {
	_, err := NewBuilder(posixOptions(), nil, fakeSinks{}).Build(models.Target{File: "/app/spec/a_spec.rb"}, models.ModeRun)
	assert.Error(t, err)
}

func TestBuildRSpecLaunch(t *testing.T) {
	opts := posixOptions()
	opts.RSpecEnv = map[string]string{"RAILS_ENV": "test", "DEBUG": "0"}
	opts.RSpecDebugEnv = map[string]string{"DEBUG": "1"}
	opts.ChangeDirectory = true
	opts.ProjectPath = "/app"

	target := models.Target{File: "/app/spec/user_spec.rb", Line: 9}

	t.Run("rdbg", func(t *testing.T) {
		exe, err := NewBuilder(opts, nil, testSinks).Build(target, models.ModeDebug)
		require.NoError(t, err)
		require.NotNil(t, exe.Launch)
		assert.Empty(t, exe.Command)

		launch := exe.Launch
		assert.Equal(t, "rdbg", launch.Type)
		assert.Equal(t, "SpecRdbgDebugger", launch.Name)
		assert.Equal(t, "launch", launch.Request)
		assert.Equal(t, "bundle exec rspec", launch.Command)
		assert.Equal(t, "'/app/spec/user_spec.rb:9'", launch.Script)
		assert.Equal(t, map[string]string{"RAILS_ENV": "test", "DEBUG": "1"}, launch.Env)
		assert.Equal(t, []string{"-f p", "-f j --out '/tmp/rspec.json'"}, launch.Args)
		require.NotNil(t, launch.AskParameters)
		assert.False(t, *launch.AskParameters)
		require.NotNil(t, launch.UseTerminal)
		assert.True(t, *launch.UseTerminal)
		assert.Equal(t, "/app", launch.Cwd)
	})

	t.Run("ruby_lsp", func(t *testing.T) {
		lspOpts := opts
		lspOpts.Debugger = DebuggerRubyLSP
		exe, err := NewBuilder(lspOpts, nil, testSinks).Build(target, models.ModeDebug)
		require.NoError(t, err)

		launch := exe.Launch
		assert.Equal(t, "ruby_lsp", launch.Type)
		assert.Equal(t, "SpecRubyLSPDebugger", launch.Name)
		assert.Equal(t, "bundle exec rspec -f p -f j --out '/tmp/rspec.json' '/app/spec/user_spec.rb:9'", launch.Program)
		assert.Equal(t, map[string]string{"RAILS_ENV": "test", "DEBUG": "0"}, launch.Env)
		assert.Nil(t, launch.AskParameters)
		assert.Equal(t, "/app", launch.Cwd)

		data, err := json.Marshal(launch)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "askParameters")
		assert.NotContains(t, string(data), "script")
	})
}

func TestBuildMinitestLaunch(t *testing.T) {
	opts := posixOptions()
	target := models.Target{File: "/app/test/user_test.rb", Line: 2, Name: "UserTest", ContextChildLines: []int{7}}

	exe, err := NewBuilder(opts, nil, testSinks).Build(target, models.ModeDebug)
	require.NoError(t, err)
	assert.Equal(t, "MinitestRdbgDebugger", exe.Launch.Name)
	assert.Equal(t, "bundle exec rails t", exe.Launch.Command)
	assert.Equal(t, `'/app/test/user_test.rb' -- -n "/(^|::)UserTest(::|#)/"`, exe.Launch.Script)
	assert.Empty(t, exe.Launch.Cwd)

	opts.Debugger = DebuggerRubyLSP
	exe, err = NewBuilder(opts, nil, testSinks).Build(models.Target{File: "/app/test/user_test.rb", Line: 7}, models.ModeDebug)
	require.NoError(t, err)
	assert.Equal(t, "MinitestRubyLSPDebugger", exe.Launch.Name)
	assert.Equal(t, "bundle exec rails t '/app/test/user_test.rb:7'", exe.Launch.Program)
}

func TestBuildUnknownDebugger(t *testing.T) {
	opts := posixOptions()
	opts.Debugger = "pry"

	for _, file := range []string{"/app/spec/a_spec.rb", "/app/test/a_test.rb"} {
		_, err := NewBuilder(opts, nil, testSinks).Build(models.Target{File: file}, models.ModeDebug)
		assert.ErrorIs(t, err, ErrUnknownDebugger, file)
	}

	// Runs do not depend on the debugger.
	exe, err := NewBuilder(opts, nil, testSinks).Build(models.Target{File: "/app/spec/a_spec.rb"}, models.ModeRun)
	require.NoError(t, err)
	assert.Contains(t, exe.Command, "bundle exec rspec")
}

func TestDebuggerKnown(t *testing.T) {
	assert.True(t, DebuggerRdbg.Known())
	assert.True(t, DebuggerRubyLSP.Known())
	assert.False(t, Debugger("pry").Known())
	assert.False(t, Debugger("").Known())
}

func TestNameFilter(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"UserTest", `"/(^|::)UserTest(::|#)/"`},
		{"Admin::UserTest", `"/(^|::)Admin::UserTest(::|#)/"`},
		{"handles (parens)", `"/(^|::)handles \(parens\)(::|#)/"`},
		{`says "hi"`, `"/(^|::)says \"hi\"(::|#)/"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NameFilter(tt.name))
		})
	}
}

func TestParseShell(t *testing.T) {
	tests := []struct {
		value   string
		want    Shell
		wantErr bool
	}{
		{"posix", ShellPOSIX, false},
		{"PowerShell", ShellPowerShell, false},
		{" bash ", ShellBash, false},
		{"", DefaultShell(), false},
		{"fish", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseShell(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShell(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
