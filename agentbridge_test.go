package workflow

import (
	"context"
	"strings"
	"testing"

	wstore "github.com/flowkit/workflow/store"
)

func buildChatWorkflow(t *testing.T) *Workflow {
	t.Helper()
	echo := NewFuncExecutor("echo")
	AddHandler(echo, func(ctx context.Context, hc *HandlerContext, messages []ChatMessage) error {
		var reply []ChatMessage
		for _, m := range messages {
			reply = append(reply, ChatMessage{Role: "assistant", Content: "echo:" + m.Content})
		}
		hc.YieldOutput(reply)
		return nil
	})
	b := NewWorkflowBuilder("chat").WithStartExecutor("echo").AddExecutor(echo)
	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}
	return wf
}

func TestAsAgentRunTurnCollectsChatOutputs(t *testing.T) {
	agent := AsAgent(buildChatWorkflow(t))
	reply, err := agent.RunTurn(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected RunTurn error: %v", err)
	}
	if len(reply) != 1 || reply[0].Content != "echo:hi" {
		t.Fatalf("expected echoed reply, got %+v", reply)
	}
}

func buildApprovalAgentWorkflow(t *testing.T) *Workflow {
	t.Helper()
	reviewer := NewFuncExecutor("reviewer")
	AddHandler(reviewer, func(ctx context.Context, hc *HandlerContext, messages []ChatMessage) error {
		_, err := hc.RequestInfo(ctx, messages[0].Content, TypeOf[string](), TypeOf[bool]())
		return err
	})
	AddResponseHandler(reviewer, func(ctx context.Context, hc *HandlerContext, request string, approved bool) error {
		if approved {
			hc.YieldOutput([]ChatMessage{{Role: "assistant", Content: "approved:" + request}})
		}
		return nil
	})
	b := NewWorkflowBuilder("approval").
		WithStartExecutor("reviewer").
		AddExecutor(reviewer).
		WithCheckpointStore(wstore.NewMemoryStore())
	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}
	return wf
}

func TestAsAgentRunTurnSurfacesRequestInfoAsFunctionCall(t *testing.T) {
	wf := buildApprovalAgentWorkflow(t)
	agent := AsAgent(wf)

	reply, err := agent.RunTurn(context.Background(), []ChatMessage{{Role: "user", Content: "deploy"}})
	if err != nil {
		t.Fatalf("unexpected RunTurn error: %v", err)
	}
	if len(reply) != 1 || reply[0].Role != "function_call" {
		t.Fatalf("expected a single function_call message surfacing the pending request, got %+v", reply)
	}
	if !strings.Contains(reply[0].Content, "request_type=string") || !strings.Contains(reply[0].Content, "response_type=bool") {
		t.Fatalf("expected the function_call content to name the request/response types, got %q", reply[0].Content)
	}
}

func TestWorkflowAgentSendApprovalResponseResumesRun(t *testing.T) {
	wf := buildApprovalAgentWorkflow(t)
	wa, ok := AsAgent(wf).(*workflowAgent)
	if !ok {
		t.Fatalf("expected AsAgent to return a *workflowAgent")
	}

	result, err := wf.Run(context.Background(), []ChatMessage{{Role: "user", Content: "deploy"}})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	reqEvents := result.GetRequestInfoEvents()
	if len(reqEvents) != 1 {
		t.Fatalf("expected exactly one pending request, got %d", len(reqEvents))
	}

	resumedReply, err := wa.SendApprovalResponse(context.Background(), result.RunID, reqEvents[0].RequestID, true)
	if err != nil {
		t.Fatalf("unexpected SendApprovalResponse error: %v", err)
	}
	if len(resumedReply) != 1 || resumedReply[0].Content != "approved:deploy" {
		t.Fatalf("expected approved chat reply, got %+v", resumedReply)
	}
}

func TestAgentExecutorWiresAgentIntoGraph(t *testing.T) {
	agent := AsAgent(buildChatWorkflow(t))
	exec := NewAgentExecutor("chat_agent", agent)

	collector := NewFuncExecutor("collector")
	AddHandler(collector, func(ctx context.Context, hc *HandlerContext, payload []ChatMessage) error {
		hc.YieldOutput(payload)
		return nil
	})

	b := NewWorkflowBuilder("host").
		WithStartExecutor("chat_agent").
		AddExecutor(exec).
		AddExecutor(collector).
		AddEdgeGroup(NewSingleEdgeGroup("g1", "chat_agent", "collector"))

	wf, result, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v (validation: %+v)", err, result.Errors)
	}

	runResult, err := wf.Run(context.Background(), []ChatMessage{{Role: "user", Content: "hey"}})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	outputs := runResult.GetOutputs()
	if len(outputs) != 1 {
		t.Fatalf("expected one output, got %d", len(outputs))
	}
	msgs, ok := outputs[0].([]ChatMessage)
	if !ok || len(msgs) != 1 || msgs[0].Content != "echo:hey" {
		t.Fatalf("expected the wrapped agent's echoed reply, got %+v", outputs[0])
	}
}

func TestBuilderAddAgentReusesWrapperForSameAgent(t *testing.T) {
	agent := AsAgent(buildChatWorkflow(t))
	b := NewWorkflowBuilder("dedup").WithStartExecutor("agent_0")
	b.AddAgent(agent)
	b.AddAgent(agent)

	if len(b.duplicateIDs) != 0 {
		t.Fatalf("expected reusing the same agent value not to register a duplicate id, got %v", b.duplicateIDs)
	}
	if _, ok := b.executors["agent_0"]; !ok {
		t.Fatalf("expected the agent to be wrapped under the default id agent_0")
	}
}
