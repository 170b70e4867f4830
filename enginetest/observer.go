package enginetest

import (
	"net/url"
	"strings"

	"github.com/wippyai/script-modules/registry"
)

// ResolveEvent is one recorded resolution with its reported outcome.
type ResolveEvent struct {
	Specifier string
	Type      registry.ResolveType
	Source    registry.ResolveSource
	Found     bool
}

// RecordingResolveObserver captures every top-level resolution.
type RecordingResolveObserver struct {
	Events []*ResolveEvent
}

func (o *RecordingResolveObserver) OnResolveModule(specifier *url.URL, typ registry.ResolveType,
	source registry.ResolveSource) registry.ResolveMetrics {
	ev := &ResolveEvent{Specifier: specifier.String(), Type: typ, Source: source}
	o.Events = append(o.Events, ev)
	return recordingMetrics{ev: ev}
}

type recordingMetrics struct{ ev *ResolveEvent }

func (m recordingMetrics) Found()    { m.ev.Found = true }
func (m recordingMetrics) NotFound() { m.ev.Found = false }

// RecordingCompilationObserver records compilation events as
// "<event> <specifier>" strings in call order.
type RecordingCompilationObserver struct {
	Events []string
}

func (o *RecordingCompilationObserver) add(event string, u *url.URL) {
	o.Events = append(o.Events, event+" "+u.String())
}

func (o *RecordingCompilationObserver) OnSourceCompileStart(u *url.URL, typ registry.ModuleType) {
	o.add("compile", u)
}

func (o *RecordingCompilationObserver) OnCompileCacheFound(u *url.URL) {
	o.add("cache-found", u)
}

func (o *RecordingCompilationObserver) OnCompileCacheRejected(u *url.URL) {
	o.add("cache-rejected", u)
}

func (o *RecordingCompilationObserver) OnCompileCacheGenerated(u *url.URL) {
	o.add("cache-generated", u)
}

func (o *RecordingCompilationObserver) OnCompileCacheGenerationFailed(u *url.URL) {
	o.add("cache-generation-failed", u)
}

func (o *RecordingCompilationObserver) OnJSONParseStart(u *url.URL, size int) {
	o.add("json-parse", u)
}

func (o *RecordingCompilationObserver) OnWasmCompileStart(u *url.URL, size int) {
	o.add("wasm-compile", u)
}

func (o *RecordingCompilationObserver) OnWasmCompileFromCache(u *url.URL) {
	o.add("wasm-cached", u)
}

// Count reports how many recorded events carry the given event name.
func (o *RecordingCompilationObserver) Count(event string) int {
	n := 0
	for _, ev := range o.Events {
		if strings.HasPrefix(ev, event+" ") {
			n++
		}
	}
	return n
}
