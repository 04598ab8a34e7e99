// Package orchestrator launches and tracks agent instances. Agent records
// live in the record store; a background monitor mirrors agent-state
// transitions onto the orchestrator's own records until the agent reaches a
// terminal status.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/intellisync/go-mcp/pkg/store"
)

const (
	tableAgents = "orchestrated_agents"
	tableStates = "agent_states"
	tableTasks  = "agent_tasks"

	defaultCheckInterval   = 10 * time.Second
	defaultMonitorDuration = time.Hour
)

// ErrInvalid marks a request the orchestrator refuses to act on.
var ErrInvalid = errors.New("invalid request")

// terminal statuses end monitoring.
func isTerminal(status string) bool {
	switch status {
	case "completed", "failed", "stopped":
		return true
	}
	return false
}

// AgentConfiguration bounds one agent instance.
type AgentConfiguration struct {
	MemoryLimit int            `json:"memory_limit" mapstructure:"memory_limit"`
	Timeout     int            `json:"timeout" mapstructure:"timeout"`
	RetryPolicy map[string]any `json:"retry_policy,omitempty" mapstructure:"retry_policy"`
}

// LaunchRequest asks for a new agent instance bound to a task.
type LaunchRequest struct {
	AgentType     string             `json:"agent_type" mapstructure:"agent_type"`
	TaskID        string             `json:"task_id" mapstructure:"task_id"`
	Configuration AgentConfiguration `json:"configuration" mapstructure:"configuration"`
}

// Options configure an Orchestrator.
type Options struct {
	Store           store.Store
	Logger          *logrus.Logger
	CheckInterval   time.Duration
	MonitorDuration time.Duration
}

// Orchestrator coordinates agent records across the agent, state and task
// tables.
type Orchestrator struct {
	store           store.Store
	log             *logrus.Logger
	checkInterval   time.Duration
	monitorDuration time.Duration

	wg   sync.WaitGroup
	done chan struct{}
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	if opts.MonitorDuration <= 0 {
		opts.MonitorDuration = defaultMonitorDuration
	}
	return &Orchestrator{
		store:           opts.Store,
		log:             opts.Logger,
		checkInterval:   opts.CheckInterval,
		monitorDuration: opts.MonitorDuration,
		done:            make(chan struct{}),
	}
}

// Launch creates the agent and initial state records, then starts a monitor
// goroutine for the new agent.
func (o *Orchestrator) Launch(ctx context.Context, req LaunchRequest) (map[string]any, error) {
	if req.AgentType == "" {
		return nil, fmt.Errorf("%w: agent_type is required", ErrInvalid)
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: task_id is required", ErrInvalid)
	}
	if req.Configuration.MemoryLimit <= 0 {
		return nil, fmt.Errorf("%w: memory_limit must be positive", ErrInvalid)
	}
	if req.Configuration.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}

	agentID := "agent-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	now := time.Now().UTC().Format(time.RFC3339)

	config := map[string]any{
		"agent_type":   req.AgentType,
		"task_id":      req.TaskID,
		"memory_limit": req.Configuration.MemoryLimit,
		"timeout":      req.Configuration.Timeout,
		"retry_policy": req.Configuration.RetryPolicy,
	}

	if _, err := o.store.Insert(ctx, tableAgents, store.Record{
		"id":            agentID,
		"agent_id":      agentID,
		"task_id":       req.TaskID,
		"agent_type":    req.AgentType,
		"status":        "initializing",
		"configuration": config,
		"created_at":    now,
		"updated_at":    now,
	}); err != nil {
		return nil, err
	}

	if _, err := o.store.Insert(ctx, tableStates, store.Record{
		"id":         agentID,
		"agent_id":   agentID,
		"config":     config,
		"status":     "initializing",
		"start_time": now,
		"metrics": map[string]any{
			"memory_usage":    0,
			"cpu_usage":       0,
			"progress":        0,
			"tasks_completed": 0,
		},
	}); err != nil {
		return nil, err
	}

	o.wg.Add(1)
	go o.monitor(agentID)

	o.log.WithFields(logrus.Fields{
		"agent_id": agentID,
		"task_id":  req.TaskID,
	}).Info("launched agent")

	return map[string]any{
		"agent_id": agentID,
		"task_id":  req.TaskID,
		"status":   "launched",
		"configuration": map[string]any{
			"memory_limit": req.Configuration.MemoryLimit,
			"timeout":      req.Configuration.Timeout,
			"retry_policy": req.Configuration.RetryPolicy,
		},
	}, nil
}

// monitor polls the agent-state record and mirrors its status and metrics
// onto the agent record until a terminal status, the monitoring window
// elapses or the orchestrator shuts down.
func (o *Orchestrator) monitor(agentID string) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.checkInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.monitorDuration)
	defer deadline.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), o.checkInterval)
		state, err := o.store.Get(ctx, tableStates, agentID)
		if err != nil {
			cancel()
			o.log.WithField("agent_id", agentID).WithError(err).Error("agent state lookup failed")
			return
		}

		status, _ := state["status"].(string)
		_, err = o.store.Update(ctx, tableAgents, agentID, store.Record{
			"status":     status,
			"metrics":    state["metrics"],
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		})
		cancel()
		if err != nil {
			o.log.WithField("agent_id", agentID).WithError(err).Error("agent status mirror failed")
			return
		}

		if isTerminal(status) {
			o.log.WithFields(logrus.Fields{
				"agent_id": agentID,
				"status":   status,
			}).Info("agent reached terminal status")
			return
		}
	}
}

// Status joins the agent, state and task records into one snapshot.
func (o *Orchestrator) Status(ctx context.Context, agentID string) (map[string]any, error) {
	agent, err := o.store.Get(ctx, tableAgents, agentID)
	if err != nil {
		return nil, err
	}

	state, err := o.store.Get(ctx, tableStates, agentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tasks, err := o.store.Select(ctx, tableTasks, store.Record{"agent_id": agentID})
	if err != nil {
		return nil, err
	}

	var completed, failed, running, pending int
	formatted := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		switch task["status"] {
		case "completed":
			completed++
		case "failed":
			failed++
		case "running":
			running++
		case "pending":
			pending++
		}
		formatted = append(formatted, map[string]any{
			"task_id":      task["task_id"],
			"status":       task["status"],
			"progress":     valueOr(task, "progress", 0),
			"started_at":   task["started_at"],
			"completed_at": task["completed_at"],
		})
	}

	progress := 0.0
	if len(tasks) > 0 {
		progress = float64(completed) / float64(len(tasks)) * 100
	}

	metrics, _ := valueOr(state, "metrics", map[string]any{}).(map[string]any)

	return map[string]any{
		"agent_id":   agentID,
		"status":     agent["status"],
		"agent_type": agent["agent_type"],
		"created_at": agent["created_at"],
		"updated_at": agent["updated_at"],
		"tasks":      formatted,
		"task_summary": map[string]any{
			"total":     len(tasks),
			"completed": completed,
			"failed":    failed,
			"running":   running,
			"pending":   pending,
			"progress":  progress,
		},
		"resources": map[string]any{
			"memory_usage": valueOr(metrics, "memory_usage", 0),
			"cpu_usage":    valueOr(metrics, "cpu_usage", 0),
		},
	}, nil
}

// Stop terminates an agent: the agent and state records go to stopped and
// running or pending tasks are marked stopped. Stopping an already terminal
// agent reports the current status without touching anything.
func (o *Orchestrator) Stop(ctx context.Context, agentID string) (map[string]any, error) {
	agent, err := o.store.Get(ctx, tableAgents, agentID)
	if err != nil {
		return nil, err
	}

	if status, _ := agent["status"].(string); isTerminal(status) {
		return map[string]any{
			"agent_id":      agentID,
			"status":        status,
			"message":       fmt.Sprintf("Agent already in %s state", status),
			"shutdown_time": agent["updated_at"],
		}, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := o.store.Update(ctx, tableAgents, agentID, store.Record{
		"status":     "stopping",
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	if _, err := o.store.Update(ctx, tableStates, agentID, store.Record{
		"status":   "stopped",
		"end_time": now,
	}); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		o.log.WithField("agent_id", agentID).Warn("agent missing from state table during stop")
	}

	for _, status := range []string{"running", "pending"} {
		tasks, err := o.store.Select(ctx, tableTasks, store.Record{"agent_id": agentID, "status": status})
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			id, _ := task["id"].(string)
			if _, err := o.store.Update(ctx, tableTasks, id, store.Record{
				"status":       "stopped",
				"completed_at": now,
				"error":        "Task stopped due to agent shutdown",
			}); err != nil {
				return nil, err
			}
		}
	}

	if _, err := o.store.Update(ctx, tableAgents, agentID, store.Record{
		"status":     "stopped",
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	o.log.WithField("agent_id", agentID).Info("stopped agent")

	return map[string]any{
		"agent_id":      agentID,
		"status":        "stopped",
		"message":       "Agent successfully stopped",
		"shutdown_time": now,
	}, nil
}

// Tasks lists every task attached to an agent together with a status
// breakdown.
func (o *Orchestrator) Tasks(ctx context.Context, agentID string) (map[string]any, error) {
	if _, err := o.store.Get(ctx, tableAgents, agentID); err != nil {
		return nil, err
	}

	tasks, err := o.store.Select(ctx, tableTasks, store.Record{"agent_id": agentID})
	if err != nil {
		return nil, err
	}

	statusCounts := map[string]int{}
	formatted := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		status, _ := task["status"].(string)
		statusCounts[status]++

		entry := map[string]any{
			"task_id":      task["task_id"],
			"type":         task["task_type"],
			"status":       status,
			"progress":     valueOr(task, "progress", 0),
			"started_at":   task["started_at"],
			"completed_at": task["completed_at"],
		}
		if status == "failed" && task["error"] != nil {
			entry["error"] = task["error"]
		}
		if status == "completed" && task["output"] != nil {
			entry["output_summary"] = summarizeOutput(task["output"])
		}
		formatted = append(formatted, entry)
	}

	return map[string]any{
		"agent_id":       agentID,
		"total_tasks":    len(tasks),
		"status_summary": statusCounts,
		"tasks":          formatted,
	}, nil
}

// Reassign moves a pending or failed task to another agent and resets it to
// pending.
func (o *Orchestrator) Reassign(ctx context.Context, taskID, newAgentID string) (map[string]any, error) {
	task, err := o.store.Get(ctx, tableTasks, taskID)
	if err != nil {
		return nil, err
	}
	oldAgentID, _ := task["agent_id"].(string)

	status, _ := task["status"].(string)
	if status != "pending" && status != "failed" {
		return nil, fmt.Errorf("%w: task cannot be reassigned in %s state", ErrInvalid, status)
	}

	agent, err := o.store.Get(ctx, tableAgents, newAgentID)
	if err != nil {
		return nil, err
	}
	agentStatus, _ := agent["status"].(string)
	switch agentStatus {
	case "running", "active", "idle":
	default:
		return nil, fmt.Errorf("%w: new agent is in %s state and cannot accept tasks", ErrInvalid, agentStatus)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	history, _ := task["reassignment_history"].([]any)
	history = append(history, map[string]any{
		"from_agent": oldAgentID,
		"to_agent":   newAgentID,
		"timestamp":  now,
		"reason":     "Manual reassignment",
	})

	if _, err := o.store.Update(ctx, tableTasks, taskID, store.Record{
		"agent_id":             newAgentID,
		"status":               "pending",
		"updated_at":           now,
		"reassignment_history": history,
	}); err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"from_agent": oldAgentID,
		"to_agent":   newAgentID,
	}).Info("reassigned task")

	return map[string]any{
		"task_id":      taskID,
		"old_agent_id": oldAgentID,
		"new_agent_id": newAgentID,
		"status":       "reassigned",
		"timestamp":    now,
	}, nil
}

// Health reports aggregate counts across the orchestrator tables.
func (o *Orchestrator) Health(ctx context.Context) (map[string]any, error) {
	agents, err := o.store.Select(ctx, tableAgents, nil)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, agent := range agents {
		if status, _ := agent["status"].(string); !isTerminal(status) {
			active++
		}
	}

	pendingTasks, err := o.store.Select(ctx, tableTasks, store.Record{"status": "pending"})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":        "healthy",
		"active_agents": active,
		"pending_tasks": len(pendingTasks),
	}, nil
}

// Shutdown stops every monitor goroutine and waits for them to exit.
func (o *Orchestrator) Shutdown() {
	close(o.done)
	o.wg.Wait()
}

// summarizeOutput compacts a large task output to its top-level shape.
// Small outputs pass through untouched.
func summarizeOutput(output any) map[string]any {
	dict, ok := output.(map[string]any)
	if !ok {
		return map[string]any{"output": "Non-dictionary output, use detailed view to see full content"}
	}
	if encoded, err := json.Marshal(dict); err == nil && len(encoded) < 500 {
		return dict
	}

	summary := make(map[string]any, len(dict))
	for key, value := range dict {
		switch v := value.(type) {
		case string, int, int64, float64, bool:
			summary[key] = v
		case []any:
			summary[key] = fmt.Sprintf("list with %d items", len(v))
		case map[string]any:
			summary[key] = fmt.Sprintf("dict with %d items", len(v))
		default:
			summary[key] = fmt.Sprintf("%T", value)
		}
	}
	return summary
}

func valueOr(rec map[string]any, key string, fallback any) any {
	if rec == nil {
		return fallback
	}
	if v, ok := rec[key]; ok && v != nil {
		return v
	}
	return fallback
}
