package workflow

import (
	"context"
	"fmt"
)

// ChatMessage is a minimal conversational turn, shaped after the teacher's
// graph/model.Message struct but declared locally: this package never
// imports an LLM client, so it cannot reuse that type directly, only its
// field shape (Role/Content).
type ChatMessage struct {
	Role    string
	Content string
}

// Agent is the narrow interface AsAgent adapts a Workflow to: a
// conversational turn in, a conversational turn out. It lets a workflow be
// embedded wherever a chat-style agent is expected without that caller
// needing to know anything about executors, edges, or supersteps.
type Agent interface {
	RunTurn(ctx context.Context, messages []ChatMessage) ([]ChatMessage, error)
}

// workflowAgent adapts a Workflow to the Agent interface.
type workflowAgent struct {
	wf *Workflow
}

// AsAgent wraps wf so it can be driven as a conversational Agent: the
// start executor must accept []ChatMessage (or a compatible supertype),
// and every ChatMessage the workflow yields via HandlerContext.YieldOutput
// is collected as the reply.
func AsAgent(wf *Workflow) Agent { return &workflowAgent{wf: wf} }

func (a *workflowAgent) RunTurn(ctx context.Context, messages []ChatMessage) ([]ChatMessage, error) {
	result, err := a.wf.Run(ctx, messages)
	if err != nil {
		return nil, err
	}
	return collectAgentReply(result), nil
}

// SendApprovalResponse answers a pending request_info raised by a prior
// RunTurn (surfaced there as a function-call-shaped ChatMessage — see
// collectAgentReply) and returns whatever the resumed run yields, mapped
// the same way a fresh RunTurn's reply would be. runID is the RunResult.RunID
// a caller received from the RunTurn call that first raised the request.
func (a *workflowAgent) SendApprovalResponse(ctx context.Context, runID, requestID string, response any) ([]ChatMessage, error) {
	result, err := a.wf.SendResponses(ctx, runID, map[string]any{requestID: response})
	if err != nil {
		return nil, err
	}
	return collectAgentReply(result), nil
}

// collectAgentReply maps a turn's outputs and any pending request_info
// events into the Agent interface's flat ChatMessage reply shape (spec
// §4.8: as_agent maps request_info events to function-call/approval-request
// contents rather than silently dropping them). A request_info event
// becomes a ChatMessage whose Content carries the request id alongside the
// declared request/response type names, so a caller can both display it and
// extract RequestID to answer it via SendApprovalResponse.
func collectAgentReply(result *RunResult) []ChatMessage {
	var reply []ChatMessage
	for _, out := range result.Outputs {
		if msg, ok := out.(ChatMessage); ok {
			reply = append(reply, msg)
			continue
		}
		if msgs, ok := out.([]ChatMessage); ok {
			reply = append(reply, msgs...)
		}
	}
	for _, ev := range result.GetRequestInfoEvents() {
		reply = append(reply, ChatMessage{
			Role: "function_call",
			Content: fmt.Sprintf("approval_request request_id=%s request_type=%s response_type=%s data=%v",
				ev.RequestID, ev.RequestType, ev.ResponseType, ev.Data),
		})
	}
	return reply
}

// AgentExecutor is the inverse of AsAgent: it wraps an Agent so it can be
// registered as an ordinary executor inside a workflow graph, accepting
// []ChatMessage and yielding the agent's []ChatMessage reply as a terminal
// workflow output. WorkflowBuilder.AddAgent produces and caches these so
// the same Agent value always wraps to the same executor (spec §4.6).
type AgentExecutor struct {
	id    string
	agent Agent
}

// NewAgentExecutor wraps agent as an executor named id.
func NewAgentExecutor(id string, agent Agent) *AgentExecutor {
	return &AgentExecutor{id: id, agent: agent}
}

func (e *AgentExecutor) ID() string { return e.id }

func (e *AgentExecutor) CanHandle(payloadType TypeID) bool {
	return TypesCompatible(payloadType, TypeOf[[]ChatMessage]())
}

func (e *AgentExecutor) InputTypes() []TypeID { return []TypeID{TypeOf[[]ChatMessage]()} }

func (e *AgentExecutor) OutputTypes() []TypeID { return []TypeID{TypeOf[[]ChatMessage]()} }

func (e *AgentExecutor) WorkflowOutputTypes() []TypeID { return []TypeID{TypeOf[[]ChatMessage]()} }

func (e *AgentExecutor) Snapshot() (any, error) { return nil, nil }

func (e *AgentExecutor) Restore(any) error { return nil }

func (e *AgentExecutor) Execute(ctx context.Context, hc *HandlerContext, payload any) error {
	messages, ok := payload.([]ChatMessage)
	if !ok {
		return &NoHandlerError{ExecutorID: e.id, PayloadType: describeValue(payload)}
	}
	reply, err := e.agent.RunTurn(ctx, messages)
	if err != nil {
		return err
	}
	hc.YieldOutput(reply)
	return nil
}
