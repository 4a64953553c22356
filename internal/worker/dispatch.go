package worker

import (
	"fmt"

	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// RegisterHandlers registers the run lifecycle handlers with the
// dispatcher. Both are synchronous: the run row must exist before the
// first frame record arrives, and the run must not close out before the
// streams are drained.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":RUN:START:", m.handleRunStart, dispatcher.Logged())
	d.Register(":RUN:END:", m.handleRunEnd, dispatcher.Logged())
}

func (m *Manager) handleRunStart(e dispatcher.Event) (any, error) {
	info, ok := e.Payload.(*storage.RunInfo)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	if err := m.backend.StartRun(info); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return nil, nil
}

// handleRunEnd waits for the drain goroutines before closing out the run,
// so every record sent before the streams were closed is persisted.
func (m *Manager) handleRunEnd(e dispatcher.Event) (any, error) {
	summary, ok := e.Payload.(*storage.RunSummary)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload type %T", e.Name, e.Payload)
	}

	m.Wait()

	if err := m.backend.EndRun(summary); err != nil {
		return nil, fmt.Errorf("failed to end run: %w", err)
	}
	return nil, nil
}
