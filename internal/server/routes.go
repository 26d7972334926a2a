package server

import (
	"github.com/gin-gonic/gin"

	"github.com/veylan/synapnode/internal/handlers"
	"github.com/veylan/synapnode/pkg/Logger"
)

// InitializeRoutes wires the node's inbound request kinds. Every /v1 route
// requires a caller hotkey; admission happens inside the handlers.
func InitializeRoutes(router *gin.Engine, h *handlers.NodeHandler, logger *Logger.Logger) {
	router.Use(handlers.RequestLoggerMiddleware(logger))
	router.Use(handlers.ErrorHandlerMiddleware(logger))

	v1 := router.Group("/v1", handlers.IdentityMiddleware())
	v1.POST("/alive", h.Alive)
	v1.POST("/chat", h.Chat)
	v1.POST("/images", h.GenerateImage)
	v1.POST("/embeddings", h.Embeddings)
}
