package enginetest

import (
	scriptmodules "github.com/wippyai/script-modules"
)

// promiseState is the shared settlement record behind a promise and
// its resolver. Settlement callbacks always run from the microtask
// queue, never inline, matching engine promise semantics.
type promiseState struct {
	eng    *Engine
	state  scriptmodules.PromiseState
	result any

	onFulfilled []func(v any)
	onRejected  []func(v any)
}

type promise struct{ s *promiseState }

func (p promise) State() scriptmodules.PromiseState { return p.s.state }

func (p promise) Result() any {
	if p.s.state == scriptmodules.PromisePending {
		return nil
	}
	return p.s.result
}

func (p promise) Then(onFulfilled, onRejected func(v any)) {
	s := p.s
	switch s.state {
	case scriptmodules.PromisePending:
		if onFulfilled != nil {
			s.onFulfilled = append(s.onFulfilled, onFulfilled)
		}
		if onRejected != nil {
			s.onRejected = append(s.onRejected, onRejected)
		}
	case scriptmodules.PromiseFulfilled:
		if onFulfilled != nil {
			v := s.result
			s.eng.enqueue(func() { onFulfilled(v) })
		}
	case scriptmodules.PromiseRejected:
		if onRejected != nil {
			v := s.result
			s.eng.enqueue(func() { onRejected(v) })
		}
	}
}

type resolver struct{ s *promiseState }

func (r resolver) Promise() scriptmodules.Promise { return promise{s: r.s} }

func (r resolver) Resolve(v any) { r.s.settle(scriptmodules.PromiseFulfilled, v) }

func (r resolver) Reject(reason any) { r.s.settle(scriptmodules.PromiseRejected, reason) }

func (s *promiseState) settle(state scriptmodules.PromiseState, v any) {
	if s.state != scriptmodules.PromisePending {
		return
	}
	s.state = state
	s.result = v
	callbacks := s.onFulfilled
	if state == scriptmodules.PromiseRejected {
		callbacks = s.onRejected
	}
	s.onFulfilled, s.onRejected = nil, nil
	for _, cb := range callbacks {
		s.eng.enqueue(func() { cb(v) })
	}
}
