package dto

import "github.com/google/uuid"

type LLMQueryRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

type LLMQueryAccepted struct {
	RequestID uuid.UUID `json:"request_id"`
	ThreadID  uuid.UUID `json:"thread_id"`
}
