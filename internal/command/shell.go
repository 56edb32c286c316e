package command

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Shell identifies the shell family that will execute a built command line.
type Shell string

const (
	// ShellPOSIX is sh/bash/zsh on Linux and macOS
	ShellPOSIX Shell = "posix"
	// ShellPowerShell is the default Windows terminal
	ShellPowerShell Shell = "powershell"
	// ShellBash is bash running on Windows (Git Bash, MSYS)
	ShellBash Shell = "bash"
)

// DefaultShell returns the shell family for the current platform.
func DefaultShell() Shell {
	if runtime.GOOS == "windows" {
		return ShellPowerShell
	}
	return ShellPOSIX
}

// ParseShell converts a configuration value into a Shell.
// An empty value selects DefaultShell.
func ParseShell(value string) (Shell, error) {
	switch Shell(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return DefaultShell(), nil
	case ShellPOSIX:
		return ShellPOSIX, nil
	case ShellPowerShell:
		return ShellPowerShell, nil
	case ShellBash:
		return ShellBash, nil
	default:
		return "", fmt.Errorf("unknown shell %q (valid: posix, powershell, bash)", value)
	}
}

// onWindows reports whether the shell runs on a Windows host, where double
// quotes are used and commands are chained with ';'.
func (s Shell) onWindows() bool {
	return s == ShellPowerShell || s == ShellBash
}

// Quote wraps value in the shell family's quote character.
func (s Shell) Quote(value string) string {
	q := "'"
	if s.onWindows() {
		q = `"`
	}
	return q + value + q
}

// Join chains commands, skipping empty ones. Windows shells keep going
// after a failed command.
func (s Shell) Join(commands ...string) string {
	sep := " && "
	if s.onWindows() {
		sep = "; "
	}

	parts := make([]string, 0, len(commands))
	for _, c := range commands {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, sep)
}

// InDirectory wraps command so it runs from dir and the caller's directory
// is restored afterwards: subshell grouping where supported, push/pop in
// PowerShell.
func (s Shell) InDirectory(dir, command string) string {
	if s == ShellPowerShell {
		return s.Join("Push-Location "+s.Quote(dir), command, "Pop-Location")
	}
	return "(" + s.Join("cd "+s.Quote(dir), command) + ")"
}

// Tee returns the pipeline stage that appends stdin to path while passing
// it through to the terminal.
func (s Shell) Tee(path string) string {
	if s == ShellPowerShell {
		return "Tee-Object -Append -FilePath " + s.Quote(path)
	}
	return "tee -a " + s.Quote(path)
}

// EnvPrefix renders env as assignments placed before a command. Keys are
// sorted so the same environment always yields the same command line.
func (s Shell) EnvPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if s == ShellPowerShell {
			parts = append(parts, fmt.Sprintf(`$env:%s="%s";`, k, v))
			continue
		}
		if needsQuoting(v) {
			v = s.Quote(v)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

func needsQuoting(v string) bool {
	return v == "" || strings.ContainsAny(v, " \t'\"$&|;<>()`*?")
}

// words joins non-empty words with single spaces.
func words(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
