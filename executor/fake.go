package executor

import (
	"context"
	"strings"
	"sync"
)

// Fake is a scripted Executor for tests. Every call is recorded. Answers
// come from the first rule whose prefix matches the full command line;
// unmatched commands succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []string
}

type fakeRule struct {
	prefix string
	ok     bool
	output string
}

func NewFake() *Fake {
	return &Fake{}
}

// On scripts the answer for every command line starting with prefix.
// Later rules take precedence over earlier ones.
func (f *Fake) On(prefix string, ok bool, output string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append([]fakeRule{{prefix: prefix, ok: ok, output: output}}, f.rules...)
	return f
}

func (f *Fake) Run(_ context.Context, name string, args ...string) (bool, string) {
	line := CommandLine(name, args...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	for _, r := range f.rules {
		if strings.HasPrefix(line, r.prefix) {
			return r.ok, r.output
		}
	}
	return true, ""
}

// Calls returns the executed command lines in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the executed command lines that start with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the first call starting with prefix, or -1.
func (f *Fake) Index(prefix string) int {
	for i, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
