package wireguard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
)

// Operation names recorded by FakeController.
const (
	OpCreateInterface  = "CreateInterface"
	OpSetMTU           = "SetMTU"
	OpSetAddress       = "SetAddress"
	OpSetLinkUp        = "SetLinkUp"
	OpAddRoute         = "AddRoute"
	OpSetPrivateKey    = "SetPrivateKeyAndListenPort"
	OpAddPeerConfig    = "AddPeerConfig"
	OpDestroyInterface = "DestroyInterface"
)

const fakeFailureExitCode = 1

// Call is one recorded controller invocation.
type Call struct {
	Op   string
	Name string
	Args []string
}

// FakeController is an in-memory Controller. It records every call, keeps the
// merged config per interface and can be told to fail specific operations.
// Key generation is not a Controller call and is not recorded.
type FakeController struct {
	mu     sync.Mutex
	calls  []Call
	merged map[string]*strings.Builder
	failOn map[string]string
}

// NewFakeController returns an empty fake.
func NewFakeController() *FakeController {
	return &FakeController{
		merged: make(map[string]*strings.Builder),
		failOn: make(map[string]string),
	}
}

// FailOn makes every subsequent call to op fail with stderr as its output.
func (f *FakeController) FailOn(op, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op] = stderr
}

// Calls returns a copy of the recorded calls.
func (f *FakeController) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (f *FakeController) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (f *FakeController) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Merged returns the accumulated config text for an interface.
func (f *FakeController) Merged(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.merged[name]; ok {
		return b.String()
	}
	return ""
}

func (f *FakeController) CreateInterface(name string) error {
	return f.record(Call{Op: OpCreateInterface, Name: name}, nil)
}

func (f *FakeController) SetMTU(name string, mtu int) error {
	return f.record(Call{Op: OpSetMTU, Name: name, Args: []string{fmt.Sprint(mtu)}}, nil)
}

func (f *FakeController) SetAddress(name, cidr string) error {
	return f.record(Call{Op: OpSetAddress, Name: name, Args: []string{cidr}}, nil)
}

func (f *FakeController) SetLinkUp(name string) error {
	return f.record(Call{Op: OpSetLinkUp, Name: name}, nil)
}

func (f *FakeController) AddRoute(name, subnet string) error {
	return f.record(Call{Op: OpAddRoute, Name: name, Args: []string{subnet}}, nil)
}

func (f *FakeController) SetPrivateKeyAndListenPort(name, privateKey string, port int) error {
	stanza := RenderInterface(privateKey, port)
	return f.record(Call{Op: OpSetPrivateKey, Name: name, Args: []string{fmt.Sprint(port)}}, func() {
		f.merge(name, stanza)
	})
}

func (f *FakeController) AddPeerConfig(name, config string) error {
	return f.record(Call{Op: OpAddPeerConfig, Name: name, Args: []string{config}}, func() {
		f.merge(name, config)
	})
}

func (f *FakeController) DestroyInterface(name string) error {
	return f.record(Call{Op: OpDestroyInterface, Name: name}, func() {
		delete(f.merged, name)
	})
}

func (f *FakeController) record(call Call, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if stderr, ok := f.failOn[call.Op]; ok {
		return errors.NewCommandError("fake "+call.Op, fakeFailureExitCode, stderr, nil)
	}
	if apply != nil {
		apply()
	}
	return nil
}

// merge must be called with f.mu held.
func (f *FakeController) merge(name, config string) {
	b, ok := f.merged[name]
	if !ok {
		b = &strings.Builder{}
		f.merged[name] = b
	}
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(config)
}
