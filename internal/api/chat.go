package api

import (
	"net/http"

	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/workflow"
)

// ChatRequest is one user message. CustomerID is a string so front-ends
// can send the anonymous sentinel unchanged.
type ChatRequest struct {
	Message    string `json:"message"`
	ThreadID   string `json:"thread_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	// ImageID refers to a picture uploaded to the thread.
	ImageID string `json:"image_id,omitempty"`
}

// ChatResponse is the outcome of a message or a decision. When
// Interrupt is set the thread waits for POST /v1/threads/{id}/resume.
type ChatResponse struct {
	ThreadID  string              `json:"thread_id"`
	Response  string              `json:"response"`
	Interrupt *workflow.Interrupt `json:"interrupt,omitempty"`
	Steps     int                 `json:"steps"`
}

func chatResponse(res *workflow.Result) ChatResponse {
	return ChatResponse{
		ThreadID:  res.ThreadID,
		Response:  res.Reply,
		Interrupt: res.Interrupt,
		Steps:     res.Steps,
	}
}

// handleChat runs one user message through the engine.
// POST /v1/chat {"message": "mua áo thun", "thread_id": "t1"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customerID, err := workflow.CustomerID(req.CustomerID, s.anonymous)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.HandleMessage(r.Context(), workflow.Message{
		ThreadID:   req.ThreadID,
		CustomerID: customerID,
		Text:       req.Message,
		ImageID:    req.ImageID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, chatResponse(res), s.logger)
}

// ResumeRequest answers a thread's interrupt.
type ResumeRequest struct {
	Decision   workflow.Decision `json:"decision"`
	ToolCallID string            `json:"tool_call_id"`
	EditedArgs map[string]any    `json:"edited_args,omitempty"`
}

// handleResume applies an approval decision.
// POST /v1/threads/{id}/resume {"decision": "approve", "tool_call_id": "call_..."}
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToolCallID == "" {
		s.errorResponse(w, http.StatusBadRequest, "tool_call_id is required")
		return
	}

	res, err := s.engine.Resume(r.Context(), workflow.ResumeSignal{
		ThreadID:   r.PathValue("id"),
		Decision:   req.Decision,
		ToolCallID: req.ToolCallID,
		EditedArgs: req.EditedArgs,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, chatResponse(res), s.logger)
}

// ThreadResponse is the inspectable state of a thread.
type ThreadResponse struct {
	ThreadID        string                   `json:"thread_id"`
	CustomerID      int64                    `json:"customer_id"`
	Next            checkpoint.Node          `json:"next"`
	Interrupt       *workflow.Interrupt      `json:"interrupt,omitempty"`
	VerifiedProduct *store.Product           `json:"verified_product,omitempty"`
	Messages        []llm.Message            `json:"messages"`
	Checkpoints     []*checkpoint.Checkpoint `json:"checkpoints"`
}

// handleThread returns a thread's state and recent checkpoints.
// GET /v1/threads/{id}?checkpoints=20
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.engine.Thread(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cps, err := s.engine.Checkpoints(r.Context(), id, parseIntParam(r, "checkpoints", 20))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ThreadResponse{
		ThreadID:        st.ThreadID,
		CustomerID:      st.CustomerID,
		Next:            st.Next,
		Interrupt:       workflow.InterruptOf(st),
		VerifiedProduct: st.VerifiedProduct,
		Messages:        st.Messages,
		Checkpoints:     cps,
	}, s.logger)
}
