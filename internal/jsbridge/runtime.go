// Package jsbridge runs plugin-authored surface scripts in an embedded
// JavaScript VM and exposes the surface bridge to them as the global
// "tilepad" object.
//
// A Runtime owns exactly one VM at a time and touches it only from its event
// loop goroutine. Bridge callbacks, promise settlements and reload requests
// are posted to the loop, so scripts observe the usual run-to-completion
// semantics.
package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/tilepad/bridge/internal/bridge"
	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/transport"
)

const jobBuffer = 64

// ErrStopped is returned when work is submitted to a runtime whose loop has
// exited.
var ErrStopped = errors.New("jsbridge: runtime stopped")

// Logger is an optional interface for logging runtime events and script
// console output.
type Logger interface {
	Printf(format string, v ...any)
}

// Script is a surface script and the name used in stack traces.
type Script struct {
	Name   string
	Source string
}

// LoadScript reads a script from disk.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("jsbridge: read %s: %w", path, err)
	}
	return Script{Name: filepath.Base(path), Source: string(data)}, nil
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBridgeOptions passes options to the underlying bridge.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(r *Runtime) {
		r.bridgeOpts = append(r.bridgeOpts, opts...)
	}
}

type job struct {
	// gen pins the job to one VM generation; zero runs on any.
	gen uint64
	fn  func(vm *goja.Runtime)
}

// Runtime hosts one surface script.
type Runtime struct {
	script     Script
	role       transport.Role
	display    *bridge.Display
	inspector  *bridge.Inspector
	logger     Logger
	bridgeOpts []bridge.Option

	jobs      chan job
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	loads     atomic.Int64

	vmMu    sync.Mutex
	current *goja.Runtime

	// Owned by the loop goroutine.
	ctx  context.Context
	vm   *goja.Runtime
	gen  uint64
	subs *emitter.Group
}

// New prepares a runtime for script on t. The bridge flavour follows the
// transport role. The script does not run until Run is called.
func New(t *transport.Transport, script Script, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		script: script,
		role:   t.Role(),
		logger: log.Default(),
		jobs:   make(chan job, jobBuffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	switch r.role {
	case transport.RoleInspector:
		in, err := bridge.NewInspector(t, r.bridgeOpts...)
		if err != nil {
			return nil, err
		}
		r.inspector = in
		r.display = in.Display
	default:
		r.display = bridge.NewDisplay(t, r.bridgeOpts...)
	}

	t.SetReloader(r.Reload)
	return r, nil
}

// Run loads the script and serves the event loop until ctx is done or Close
// is called. An error evaluating the initial script is returned; errors after
// a reload are logged and leave the surface without a script until the next
// reload.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.exited)
	defer r.unload()

	r.ctx = ctx
	if err := r.load(); err != nil {
		return err
	}

	for {
		select {
		case j := <-r.jobs:
			r.runJob(j)
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		}
	}
}

// Reload discards the VM and evaluates the script again in a fresh one.
// Subscriptions made by the previous script are released first.
func (r *Runtime) Reload() {
	r.post(job{fn: func(*goja.Runtime) {
		if err := r.load(); err != nil {
			r.logger.Printf("[jsbridge] %s: reload failed: %v", r.script.Name, err)
		}
	}})
}

// Loads reports how many times the script has been evaluated successfully.
func (r *Runtime) Loads() int64 {
	return r.loads.Load()
}

// Do runs fn on the loop against the current VM and waits for it.
func (r *Runtime) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	errc := make(chan error, 1)
	if !r.post(job{fn: func(vm *goja.Runtime) {
		if vm == nil {
			errc <- ErrStopped
			return
		}
		errc <- fn(vm)
	}}) {
		return ErrStopped
	}

	select {
	case err := <-errc:
		return err
	case <-r.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop, interrupts a running script and closes the bridge,
// cancelling any debounced writes.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.vmMu.Lock()
		if r.current != nil {
			r.current.Interrupt(ErrStopped)
		}
		r.vmMu.Unlock()
		r.display.Close()
	})
}

// post queues j for the loop. It reports false once the loop is gone.
func (r *Runtime) post(j job) bool {
	select {
	case <-r.done:
		return false
	case <-r.exited:
		return false
	default:
	}
	select {
	case r.jobs <- j:
		return true
	case <-r.done:
		return false
	case <-r.exited:
		return false
	}
}

func (r *Runtime) runJob(j job) {
	if j.gen != 0 && j.gen != r.gen {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("[jsbridge] %s: job panicked: %v", r.script.Name, p)
		}
	}()
	j.fn(r.vm)
}

func (r *Runtime) load() error {
	r.unload()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	r.gen++
	r.vm = vm
	r.subs = &emitter.Group{}
	r.vmMu.Lock()
	r.current = vm
	r.vmMu.Unlock()

	if err := r.install(vm); err != nil {
		r.unload()
		return err
	}
	if _, err := vm.RunScript(r.script.Name, r.script.Source); err != nil {
		r.unload()
		return fmt.Errorf("jsbridge: run %s: %w", r.script.Name, err)
	}
	r.loads.Add(1)
	return nil
}

func (r *Runtime) unload() {
	if r.subs != nil {
		r.subs.CloseAll()
		r.subs = nil
	}
	r.vm = nil
	r.vmMu.Lock()
	r.current = nil
	r.vmMu.Unlock()
}
