package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var userTestText = strings.Join([]string{
	"class UserTest < Minitest::Test",
	"  def test_one",
	"    assert true",
	"  end",
	"",
	"  # helpers",
	"",
	"  def test_two",
	"    x = 1",
	"    y = 2",
	"    z = 3",
	"    assert_equal x, y",
	"  end",
	"",
	"  def test_three",
	"    raise 'boom'",
	"  end",
	"end",
}, "\n") + "\n"

var userSpecText = strings.Join([]string{
	"RSpec.describe User do",
	"  it 'is valid' do",
	"    expect(User.new).to be_valid",
	"  end",
	"  it 'fails' do",
	"    raise 'boom'",
	"  end",
	"end",
}, "\n") + "\n"

// fakeMinitest prints a report with one failure at line 12 of the file it
// is given.
const fakeMinitest = `#!/bin/sh
file="$1"
cat <<OUT
Run options: --seed 4242

# Running:

.F.

Finished in 0.001234s, 2431.1 runs/s, 2431.1 assertions/s.

  1) Failure:
UserTest#test_two [$file:12]:
Expected: 1
  Actual: 2

3 runs, 3 assertions, 1 failures, 0 errors, 0 skips
OUT
`

// fakeRSpec writes a JSON report to the path following --out.
const fakeRSpec = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --out) shift; out="$1" ;;
  esac
  shift
done
cat > "$out" <<'JSON'
{"version":"3.13.0","seed":1,"examples":[{"id":"./spec/user_spec.rb[1:1]","description":"is valid","full_description":"User is valid","status":"passed","file_path":"./spec/user_spec.rb","line_number":2,"run_time":0.001},{"id":"./spec/user_spec.rb[1:2]","description":"fails","full_description":"User fails","status":"failed","file_path":"./spec/user_spec.rb","line_number":5,"run_time":0.002,"exception":{"class":"RuntimeError","message":"boom","backtrace":["./spec/user_spec.rb:6:in 'block (2 levels) in <top (required)>'"]}}],"summary":{"duration":0.01,"example_count":2,"failure_count":1,"pending_count":0},"summary_line":"2 examples, 1 failure"}
JSON
echo "2 examples, 1 failure"
`

// project is a throwaway Ruby project whose runners are shell scripts.
type project struct {
	dir      string
	testFile string
	specFile string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newProject(t *testing.T, extraConfig string) *project {
	t.Helper()
	dir := t.TempDir()

	p := &project{
		dir:      dir,
		testFile: filepath.Join(dir, "test", "user_test.rb"),
		specFile: filepath.Join(dir, "spec", "user_spec.rb"),
	}

	writeFile(t, filepath.Join(dir, "Gemfile"), "source 'https://rubygems.org'\n")
	writeFile(t, p.testFile, userTestText)
	writeFile(t, p.specFile, userSpecText)
	writeFile(t, filepath.Join(dir, "bin", "minitest"), fakeMinitest)
	writeFile(t, filepath.Join(dir, "bin", "rspec"), fakeRSpec)

	config := fmt.Sprintf(`minitest_command: sh %s
rspec_command: sh %s
shell: posix
sink_dir: tmp/sinks
log_level: error
`, filepath.Join(dir, "bin", "minitest"), filepath.Join(dir, "bin", "rspec"))
	writeFile(t, filepath.Join(dir, ".specrunner", "config.yaml"), config+extraConfig)

	return p
}

// execute runs the CLI against the project and returns stdout and stderr.
func (p *project) execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return p.executeContext(t, context.Background(), args...)
}

func (p *project) executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--workspace", p.dir))

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}
