package config

import "sync/atomic"

// Runtime holds operator switches consulted on every combat event. They
// change at runtime through the API or CLI and are never persisted.
type Runtime struct {
	paused     atomic.Bool
	onlyTarget atomic.Uint64
}

// NewRuntime seeds the switches from the engine configuration.
func NewRuntime(engine EngineConfig) *Runtime {
	r := &Runtime{}
	r.paused.Store(engine.StartPaused)
	r.onlyTarget.Store(engine.OnlyRecordTarget)
	return r
}

// Paused reports whether stat recording is suspended.
func (r *Runtime) Paused() bool { return r.paused.Load() }

// SetPaused changes the paused flag and reports whether it changed.
func (r *Runtime) SetPaused(paused bool) bool {
	return r.paused.Swap(paused) != paused
}

// OnlyRecordTarget returns the single target uid damage is restricted to,
// or 0 when unrestricted.
func (r *Runtime) OnlyRecordTarget() uint64 { return r.onlyTarget.Load() }

// SetOnlyRecordTarget restricts damage recording to one target uid.
func (r *Runtime) SetOnlyRecordTarget(uid uint64) { r.onlyTarget.Store(uid) }
