// Package handlers exposes the node's inbound request kinds over gin:
// liveness, streaming completion, image generation and embeddings. Every kind
// passes the same admission gate keyed by the caller hotkey.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veylan/synapnode/internal/admission"
	"github.com/veylan/synapnode/internal/dispatch"
	"github.com/veylan/synapnode/internal/embedding"
	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
)

type NodeHandler struct {
	admission  *admission.Controller
	dispatcher *dispatch.Dispatcher
	batcher    *embedding.Batcher
	images     provider.ImageGenerator
	logger     *Logger.Logger
}

func NewNodeHandler(
	ctrl *admission.Controller,
	dispatcher *dispatch.Dispatcher,
	batcher *embedding.Batcher,
	images provider.ImageGenerator,
	logger *Logger.Logger,
) *NodeHandler {
	return &NodeHandler{
		admission:  ctrl,
		dispatcher: dispatcher,
		batcher:    batcher,
		images:     images,
		logger:     logger,
	}
}

// admit runs the admission gate and writes the rejection if there is one.
func (h *NodeHandler) admit(c *gin.Context, kind admission.RequestKind) bool {
	identity := callerIdentity(c)
	decision := h.admission.Admit(c.Request.Context(), identity, kind)
	if !decision.Admit {
		h.logger.Infof("rejected %s request from %s: %s", kind, identity, decision.Reason)
		c.JSON(http.StatusForbidden, ErrorResponse{Error: decision.Reason})
		return false
	}
	h.logger.Debugf(decision.Reason)
	return true
}

// Alive answers the liveness probe.
func (h *NodeHandler) Alive(c *gin.Context) {
	if !h.admit(c, admission.KindIsAlive) {
		return
	}
	c.JSON(http.StatusOK, AliveResponse{Alive: true})
}

// Chat serves a streaming completion as a chunked byte stream.
func (h *NodeHandler) Chat(c *gin.Context) {
	var req provider.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	for _, m := range req.Messages {
		if !validRole(m.Role) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message role: " + string(m.Role)})
			return
		}
	}
	if !h.admit(c, admission.KindCompletion) {
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	// Errors are already logged and the stream is already terminated by the
	// dispatcher; nothing more can be written to the response here.
	_ = h.dispatcher.Dispatch(c.Request.Context(), req, newGinSink(c.Writer))
}

// GenerateImage serves the one-shot image generation call.
func (h *NodeHandler) GenerateImage(c *gin.Context) {
	var req ImageGenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !h.admit(c, admission.KindImage) {
		return
	}
	if h.images == nil || req.Provider != "OpenAI" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown image provider: " + req.Provider})
		return
	}

	result, err := h.images.GenerateImage(c.Request.Context(), provider.ImageRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
	})
	if err != nil {
		h.logger.Errorf("image generation failed: %v", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "image generation failed"})
		return
	}
	c.JSON(http.StatusOK, ImageGenResponse{
		URL:           result.URL,
		RevisedPrompt: result.RevisedPrompt,
	})
}

// Embeddings serves the batched embedding call. Failed batches are skipped,
// so the result may be shorter than the input.
func (h *NodeHandler) Embeddings(c *gin.Context) {
	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !h.admit(c, admission.KindEmbedding) {
		return
	}

	vectors := h.batcher.Run(c.Request.Context(), req.Texts, req.Model)
	c.JSON(http.StatusOK, EmbeddingResponse{Embeddings: vectors})
}

// ginSink adapts the gin response writer to the dispatch sink: every frame is
// flushed so the caller sees tokens as they arrive.
type ginSink struct {
	w gin.ResponseWriter
}

func newGinSink(w gin.ResponseWriter) *ginSink {
	return &ginSink{w: w}
}

func (s *ginSink) Send(p []byte, more bool) error {
	if len(p) > 0 {
		if _, err := s.w.Write(p); err != nil {
			return err
		}
	}
	s.w.Flush()
	return nil
}
