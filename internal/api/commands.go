package api

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"

	"github.com/pkg/errors"

	"github.com/tessro/fbmon/internal/transport"
)

// decodeReply decodes a request reply into T. A reply of the form
// {"error": "..."} is returned as a ServerError.
func decodeReply[T any](op string, raw json.RawMessage) (T, error) {
	var result T
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var head struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &head); err == nil && len(head.Error) > 0 {
			var msg string
			if json.Unmarshal(head.Error, &msg) == nil {
				return result, NewServerError(op, msg)
			}
		}
	}
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, errors.Wrapf(err, "decode %s reply", op)
	}
	return result, nil
}

// request sends name and decodes the reply into cb. A nil cb still sends.
func request[T any](c *Connection, ctx context.Context, name string, arg any, cb func(T, error)) {
	c.transport.SendRequest(ctx, name, arg, func(raw json.RawMessage, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			var zero T
			cb(zero, err)
			return
		}
		cb(decodeReply[T](name, raw))
	})
}

// gated runs send with the active project name. It reports false, without
// sending, when no project is active.
func (c *Connection) gated(name string, send func(project string)) bool {
	project, ok := c.projects.Active()
	if !ok {
		c.log.Debug("skipping command without active project", "command", name)
		return false
	}
	send(project)
	return true
}

// ListProjects requests the projects known to the server.
func (c *Connection) ListProjects(ctx context.Context, cb func([]ProjectInfo, error)) {
	request(c, ctx, MsgListProjects, transport.NoArg, cb)
}

// CreateProject asks the server to create name and selects it immediately.
// The selection is not reverted if the server rejects the project; use
// CreateProjectVerified for that.
func (c *Connection) CreateProject(name string) {
	c.transport.SendCommand(MsgCreateProject, name)
	c.SelectProject(name)
}

// CreateProjectVerified creates name like CreateProject, then confirms it
// against a project listing. If the server does not list the project, the
// previous selection is restored and cb receives ErrProjectNotCreated.
func (c *Connection) CreateProjectVerified(ctx context.Context, name string, cb func(error)) {
	pending := c.projects.Begin(name)
	c.transport.SendCommand(MsgCreateProject, name)
	c.log.Info("project selected", "project", name, "pending", true)

	c.ListProjects(ctx, func(projects []ProjectInfo, err error) {
		if err == nil && !slices.ContainsFunc(projects, func(p ProjectInfo) bool { return p.ProjectName == name }) {
			err = ErrProjectNotCreated
		}
		if err != nil {
			pending.Rollback()
			c.log.Warn("project creation not confirmed", "project", name, "error", err)
		} else {
			pending.Confirm()
		}
		if cb != nil {
			cb(err)
		}
	})
}

// Bootstrap lists the projects and, when SelectFirstProject is set and no
// project is active yet, selects the first one. cb, if not nil, receives
// the listing.
func (c *Connection) Bootstrap(ctx context.Context, cb func([]ProjectInfo, error)) {
	c.ListProjects(ctx, func(projects []ProjectInfo, err error) {
		if err == nil && c.opts.SelectFirstProject && len(projects) > 0 {
			if _, ok := c.projects.Active(); !ok {
				c.SelectProject(projects[0].ProjectName)
			}
		}
		if cb != nil {
			cb(projects, err)
		}
	})
}

// GetInputParams requests the input options of the active project.
func (c *Connection) GetInputParams(ctx context.Context, cb func(*InputParams, error)) bool {
	return c.gated(MsgGetInputParams, func(project string) {
		request(c, ctx, MsgGetInputParams, project, cb)
	})
}

// LaunchOptimizer starts the optimizer of the active project.
func (c *Connection) LaunchOptimizer() bool {
	return c.gated(MsgLaunchOptimizer, func(project string) {
		c.transport.SendCommand(MsgLaunchOptimizer, project)
	})
}

// ResetOptimizer resets the optimizer of the active project.
func (c *Connection) ResetOptimizer() bool {
	return c.gated(MsgResetOptimizer, func(project string) {
		c.transport.SendCommand(MsgResetOptimizer, project)
	})
}

// PullStatus asks the server to push the status of the active project.
func (c *Connection) PullStatus() bool {
	return c.gated(MsgPullStatus, func(project string) {
		c.transport.SendCommand(MsgPullStatus, project)
	})
}

// GetWorkQueueStatus requests the work queue counters of the active project.
func (c *Connection) GetWorkQueueStatus(ctx context.Context, cb func(*WorkQueueStatus, error)) bool {
	return c.gated(MsgGetWorkQueueStatus, func(project string) {
		request(c, ctx, MsgGetWorkQueueStatus, project, cb)
	})
}

// GetOptimizerState requests the per-iteration results of the active project.
func (c *Connection) GetOptimizerState(ctx context.Context, cb func(OptimizerState, error)) bool {
	return c.gated(MsgGetOptimizerState, func(project string) {
		request(c, ctx, MsgGetOptimizerState, project, cb)
	})
}

// GetAllTargetsInfo requests the fitting targets of the active project.
func (c *Connection) GetAllTargetsInfo(ctx context.Context, cb func(map[string]TargetInfo, error)) bool {
	return c.gated(MsgGetAllTargetsInfo, func(project string) {
		request(c, ctx, MsgGetAllTargetsInfo, project, cb)
	})
}

// GetFinalForceFieldInfo requests the optimized force field of the active
// project.
func (c *Connection) GetFinalForceFieldInfo(ctx context.Context, cb func(*ForceFieldInfo, error)) bool {
	return c.gated(MsgGetFinalForceFieldInfo, func(project string) {
		request(c, ctx, MsgGetFinalForceFieldInfo, project, cb)
	})
}

// GetTargetObjectiveData requests the energies of target at iteration.
func (c *Connection) GetTargetObjectiveData(ctx context.Context, target string, iteration int, cb func(*ObjectiveData, error)) bool {
	return c.gated(MsgGetTargetObjectiveData, func(project string) {
		req := ObjectiveDataRequest{ProjectName: project, TargetName: target, Iteration: iteration}
		request(c, ctx, MsgGetTargetObjectiveData, req, cb)
	})
}
