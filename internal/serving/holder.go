// Package serving keeps one model resident in memory and answers prediction
// requests against it. Model swaps are atomic: a request sees either the old
// model or the new one, never a mix.
package serving

import (
	"sync/atomic"

	"github.com/modelbay-labs/modelbay-go/internal/textclf"
)

type loadedModel struct {
	runID string
	model *textclf.Model
}

// Holder owns the currently served model. The zero value holds nothing.
type Holder struct {
	current atomic.Pointer[loadedModel]
}

// Swap replaces the served model. In-flight requests keep the snapshot they
// captured at entry.
func (h *Holder) Swap(runID string, model *textclf.Model) {
	h.current.Store(&loadedModel{runID: runID, model: model})
}

// Current returns the served model and its run. ok is false before the
// first successful load.
func (h *Holder) Current() (runID string, model *textclf.Model, ok bool) {
	l := h.current.Load()
	if l == nil {
		return "", nil, false
	}
	return l.runID, l.model, true
}
