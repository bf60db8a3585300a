package tui

import (
	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/transport"
)

// projectChangedMsg is sent when a widget's project subscription fires.
type projectChangedMsg struct {
	Widget  widgetID
	Project string
}

// projectListMsg contains the projects known to the server.
type projectListMsg struct {
	Projects []api.ProjectInfo
	Err      error
}

// connStateMsg reports a transport state transition.
type connStateMsg struct {
	State transport.State
}

// statusMsg carries an optimizer status push.
type statusMsg struct {
	Update api.StatusUpdate
}

// workQueueMsg carries work queue counters from a push or a reply.
type workQueueMsg struct {
	Project string
	Status  *api.WorkQueueStatus
	Err     error
}

// optimizerTriggerMsg is sent when the server reports a finished iteration.
type optimizerTriggerMsg struct{}

// optimizerStateMsg carries a reply to GetOptimizerState.
type optimizerStateMsg struct {
	Project string
	State   api.OptimizerState
	Err     error
}

// clearErrorMsg is sent to clear the error display after a timeout.
type clearErrorMsg struct{}
