// Package tooltest provides a scripted tool.Runner for tests.
package tooltest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/k11v/arframe/internal/tool"
)

var _ tool.Runner = (*Runner)(nil)

// Runner is a fake tool.Runner.
// Tools listed in Installed, by base name, are found by LookPath and run.
// Handlers keyed by tool name decide the Result of Run;
// a tool without a handler succeeds with empty output.
type Runner struct {
	Installed []string
	Handlers  map[string]func(cmd *tool.Command) *tool.Result

	mu    sync.Mutex
	calls []*tool.Command
}

func (r *Runner) Run(_ context.Context, cmd *tool.Command) *tool.Result {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	name := filepath.Base(cmd.Name)
	if !slices.Contains(r.Installed, name) {
		return &tool.Result{ExitCode: -1, Stderr: "spawn_error: executable file not found"}
	}
	if h, ok := r.Handlers[name]; ok {
		return h(cmd)
	}
	return &tool.Result{Success: true}
}

func (r *Runner) LookPath(name string) (string, bool) {
	if slices.Contains(r.Installed, name) {
		return "/usr/bin/" + name, true
	}
	return "", false
}

// Calls returns the commands run so far.
func (r *Runner) Calls() []*tool.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallNames returns the base names of the tools run so far.
func (r *Runner) CallNames() []string {
	var names []string
	for _, c := range r.Calls() {
		names = append(names, filepath.Base(c.Name))
	}
	return names
}

// WriteFile returns a handler that writes content to the file at argument
// index arg (resolved against the command's Dir) and succeeds.
func WriteFile(arg int, content []byte) func(cmd *tool.Command) *tool.Result {
	return func(cmd *tool.Command) *tool.Result {
		if arg >= len(cmd.Args) {
			return &tool.Result{ExitCode: 2, Stderr: "missing argument"}
		}
		name := cmd.Args[arg]
		if !filepath.IsAbs(name) {
			name = filepath.Join(cmd.Dir, name)
		}
		if err := os.WriteFile(name, content, 0o666); err != nil {
			return &tool.Result{ExitCode: 1, Stderr: err.Error()}
		}
		return &tool.Result{Success: true}
	}
}

// Fail returns a handler that fails with the given exit code and stderr.
func Fail(exitCode int, stderr string) func(cmd *tool.Command) *tool.Result {
	return func(cmd *tool.Command) *tool.Result {
		return &tool.Result{ExitCode: exitCode, Stderr: stderr}
	}
}
