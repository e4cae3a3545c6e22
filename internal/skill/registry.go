// Package skill provides the capability registry consumed by worker
// execution contexts. A capability is a named, invocable operation
// returning a structured result or a typed failure.
package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ErrorKind classifies capability failures.
type ErrorKind string

const (
	// NotFound means no capability is registered under the name.
	NotFound ErrorKind = "not_found"
	// ExecutionFailed means the capability ran and failed.
	ExecutionFailed ErrorKind = "execution_failed"
	// Timeout means the capability exceeded its own deadline.
	Timeout ErrorKind = "timeout"
)

// CapabilityError is the typed failure returned by Invoke.
type CapabilityError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Name is the capability that failed.
	Name string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *CapabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capability %s: %s: %v", e.Name, e.Kind, e.Cause)
	}
	return fmt.Sprintf("capability %s: %s", e.Name, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *CapabilityError) Unwrap() error {
	return e.Cause
}

// Capability is one invocable named operation.
type Capability interface {
	// Name is the invocation name, lowercase snake_case.
	Name() string
	// Description documents usage for the reasoning prompt.
	Description() string
	// Execute runs the capability with a raw argument payload.
	Execute(ctx context.Context, args string) (string, error)
}

// Registry resolves capability names to invocable operations.
type Registry interface {
	// Invoke runs the named capability. Failures are always
	// *CapabilityError so callers can branch on Kind.
	Invoke(ctx context.Context, name, args string) (string, error)
	// Describe lists registered capabilities for prompt assembly.
	Describe() []string
}

// MemoryRegistry is the in-process Registry implementation.
type MemoryRegistry struct {
	mu     sync.RWMutex
	skills map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *MemoryRegistry {
	return &MemoryRegistry{skills: make(map[string]Capability)}
}

// Register adds a capability, replacing any previous one with the
// same name.
func (r *MemoryRegistry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[c.Name()] = c
}

// Invoke runs the named capability.
func (r *MemoryRegistry) Invoke(ctx context.Context, name, args string) (string, error) {
	r.mu.RLock()
	c, ok := r.skills[name]
	r.mu.RUnlock()

	if !ok {
		return "", &CapabilityError{Kind: NotFound, Name: name}
	}

	out, err := c.Execute(ctx, args)
	if err != nil {
		kind := ExecutionFailed
		if ctx.Err() == context.DeadlineExceeded {
			kind = Timeout
		}
		return "", &CapabilityError{Kind: kind, Name: name, Cause: err}
	}
	return out, nil
}

// Describe returns "name: description" lines in stable order.
func (r *MemoryRegistry) Describe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s: %s", name, r.skills[name].Description())
	}
	return out
}

// Builtin returns a registry loaded with the built-in capabilities,
// rooted at the given directory for filesystem access.
func Builtin(root string) *MemoryRegistry {
	r := NewRegistry()
	r.Register(&ClockSkill{})
	r.Register(&ReadFileSkill{Root: root})
	r.Register(&ListDirSkill{Root: root})
	r.Register(&HTTPFetchSkill{})
	return r
}
