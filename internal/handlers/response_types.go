package handlers

import "github.com/veylan/synapnode/pkg/provider"

type AliveResponse struct {
	Alive bool `json:"alive"`
}

type ImageGenRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
	Size     string `json:"size"`
	Quality  string `json:"quality"`
	Style    string `json:"style"`
}

type ImageGenResponse struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type EmbeddingRequest struct {
	Texts []string `json:"texts" binding:"required"`
	Model string   `json:"model" binding:"required"`
}

type EmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func validRole(r provider.Role) bool {
	switch r {
	case provider.RoleSystem, provider.RoleUser, provider.RoleAssistant:
		return true
	}
	return false
}
