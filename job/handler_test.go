package job

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/nodes"
	"github.com/flowforge/workflowengine/queue"
	"github.com/flowforge/workflowengine/store"
)

func newTestHandler(t *testing.T, st *store.MemStore) *Handler {
	t.Helper()
	reg := engine.NewRegistry()
	require.NoError(t, nodes.Register(reg, nodes.Dependencies{}))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(st, reg, nil, nil, DefaultConfig(), logger)
}

func TestHandlerRunCompletesLinearWorkflow(t *testing.T) {
	st := store.NewMemStore()
	st.Seed(store.Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Nodes: []engine.WorkflowNode{
			{ID: "trigger", Type: "manual-trigger"},
			{ID: "log", Type: "log", Config: engine.NodeConfig{"message": "done"}},
			{ID: "out", Type: "output"},
		},
		Edges: []engine.WorkflowEdge{
			{ID: "e1", Source: "trigger", Target: "log"},
			{ID: "e2", Source: "log", Target: "out"},
		},
	})

	h := newTestHandler(t, st)
	err := h.Run(context.Background(), queue.Job{
		ExecutionID:    "exec-1",
		WorkflowID:     "wf-1",
		UserID:         "user-1",
		TriggerPayload: map[string]interface{}{"hello": "world"},
	})
	require.NoError(t, err)

	status, _ := st.Status("exec-1")
	require.Equal(t, "completed", status)
	steps := st.Steps("exec-1")
	require.Len(t, steps, 3)
	for _, s := range steps {
		require.Equal(t, "completed", s.Status)
	}

	snaps := st.Snapshots("exec-1")
	require.NotEmpty(t, snaps)
}

func TestHandlerRunFailsOnUnknownWorkflow(t *testing.T) {
	st := store.NewMemStore()
	h := newTestHandler(t, st)

	err := h.Run(context.Background(), queue.Job{ExecutionID: "exec-2", WorkflowID: "missing-wf"})
	require.Error(t, err)
	status, _ := st.Status("exec-2")
	require.Equal(t, "failed", status)
}

func TestHandlerRunFailsOnNodeError(t *testing.T) {
	st := store.NewMemStore()
	st.Seed(store.Workflow{
		ID: "wf-2",
		Nodes: []engine.WorkflowNode{
			{ID: "trigger", Type: "manual-trigger"},
			{ID: "llm-node", Type: "llm", Config: engine.NodeConfig{"prompt": "hi", "provider": "openai"}},
		},
		Edges: []engine.WorkflowEdge{
			{ID: "e1", Source: "trigger", Target: "llm-node"},
		},
	})

	h := newTestHandler(t, st)
	err := h.Run(context.Background(), queue.Job{ExecutionID: "exec-3", WorkflowID: "wf-2"})
	require.Error(t, err)
	status, _ := st.Status("exec-3")
	require.Equal(t, "failed", status)
}
