package publish

import (
	"slices"
	"sync"

	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

type eventKind uint8

const (
	eventStage eventKind = iota + 1
	eventError
	eventLevel
)

// event is one observer notification travelling from a pipeline task to
// the dispatcher.
type event struct {
	kind    eventKind
	pkg     string
	stage   domain.Stage
	message string
	level   int
	pkgs    []string
}

// eventBus decouples pipeline tasks from the observer. A single dispatcher
// goroutine drains the channel, then calls OnComplete.
//
// Scheduler state changes bypass the channel: they are queued without
// blocking, since they arrive from control handlers that may themselves
// be waiting on the observer.
type eventBus struct {
	mu     sync.Mutex
	closed bool
	ch     chan event
	done   chan struct{}

	stateMu     sync.Mutex
	stateClosed bool
	states      []domain.SchedulerState
	stateReady  chan struct{}
}

func newEventBus(observer Observer, buffer int) *eventBus {
	b := &eventBus{
		ch:         make(chan event, buffer),
		done:       make(chan struct{}),
		stateReady: make(chan struct{}, 1),
	}
	go b.dispatch(observer)
	return b
}

func (b *eventBus) dispatch(observer Observer) {
	defer close(b.done)
	for {
		select {
		case <-b.stateReady:
			b.flushStates(observer)
		case ev, ok := <-b.ch:
			if !ok {
				b.flushStates(observer)
				observer.OnComplete()
				return
			}
			b.deliver(observer, ev)
		}
	}
}

func (b *eventBus) deliver(observer Observer, ev event) {
	switch ev.kind {
	case eventStage:
		observer.OnStageChange(ev.pkg, ev.stage)
	case eventError:
		observer.OnError(ev.pkg, ev.message)
	case eventLevel:
		observer.OnLevelStart(ev.level, ev.pkgs)
	}
}

func (b *eventBus) flushStates(observer Observer) {
	b.stateMu.Lock()
	states := b.states
	b.states = nil
	b.stateMu.Unlock()
	for _, state := range states {
		observer.OnSchedulerStateChange(state)
	}
}

// emit queues ev. Events after close are dropped.
func (b *eventBus) emit(ev event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ch <- ev
}

func (b *eventBus) stage(pkg string, stage domain.Stage) {
	b.emit(event{kind: eventStage, pkg: pkg, stage: stage})
}

func (b *eventBus) errMsg(pkg, message string) {
	b.emit(event{kind: eventError, pkg: pkg, message: message})
}

func (b *eventBus) level(level int, pkgs []string) {
	b.emit(event{kind: eventLevel, level: level, pkgs: slices.Clone(pkgs)})
}

// state queues a scheduler state change. It never blocks.
func (b *eventBus) state(state domain.SchedulerState) {
	b.stateMu.Lock()
	if b.stateClosed {
		b.stateMu.Unlock()
		return
	}
	b.states = append(b.states, state)
	b.stateMu.Unlock()

	select {
	case b.stateReady <- struct{}{}:
	default:
	}
}

// close stops accepting events and waits for the dispatcher to finish.
func (b *eventBus) close() {
	b.stateMu.Lock()
	b.stateClosed = true
	b.stateMu.Unlock()

	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	b.mu.Unlock()
	<-b.done
}
