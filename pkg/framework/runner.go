package framework

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// task is a Runnable started by a Runner.
type task struct {
	name     string
	runnable Runnable
}

// Runner runs Runnables as concurrent tasks and collects their errors.
// A failing task is logged and does not stop the others; a task
// stopped by cancellation is not a failure.
type Runner struct {
	Context context.Context

	tasks   []task
	results chan error
	forced  chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		results: make(chan error),
		forced:  make(chan struct{}),
	}
}

// HandleSignals cancels the context on SIGINT or SIGTERM. A second
// signal makes Wait return ErrForcedExit without waiting for tasks.
func (r *Runner) HandleSignals() *Runner {
	ctx, stop := context.WithCancel(r.Context)
	r.Context = ctx
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		glog.Infof("%v: stopping", sig)
		stop()
		sig = <-sigs
		glog.Errorf("%v again: force exit", sig)
		close(r.forced)
	}()
	return r
}

// Names returns the names of the started tasks, in start order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.tasks))
	for n, t := range r.tasks {
		names[n] = t.name
	}
	return names
}

// Go starts Runnables with the runner context.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	return r.GoWith(r.Context, runnables...)
}

// GoWith starts Runnables with a specified context. Tasks without a
// Name are named by their start index.
func (r *Runner) GoWith(ctx context.Context, runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		t := task{name: strconv.Itoa(len(r.tasks)), runnable: runnable}
		if named, ok := runnable.(Named); ok {
			t.name = named.Name()
		}
		r.tasks = append(r.tasks, t)
		go r.run(ctx, t)
	}
	return r
}

func (r *Runner) run(ctx context.Context, t task) {
	glog.V(4).Infof("task %s started", t.name)
	err := t.runnable.Run(ctx)
	switch {
	case err == nil:
		glog.V(4).Infof("task %s done", t.name)
	case errors.Is(err, context.Canceled):
		glog.V(4).Infof("task %s cancelled", t.name)
		err = nil
	default:
		glog.Errorf("task %s failed: %v", t.name, err)
		err = &TaskError{Name: t.name, Err: err}
	}
	select {
	case r.results <- err:
	case <-r.forced:
	}
}

// Wait blocks until every started task returned and aggregates
// their failures.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.tasks {
		select {
		case err := <-r.results:
			errs.Add(err)
		case <-r.forced:
			return ErrForcedExit
		}
	}
	return errs.Aggregate()
}
