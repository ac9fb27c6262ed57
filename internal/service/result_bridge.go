package service

import (
	"context"
	"fmt"
	"time"

	"chatserver-be/internal/model"
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"
	"chatserver-be/pkg/querypipeline"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const recordTimeout = 5 * time.Second

type IResultBridge interface {
	Deliver(channelID uuid.UUID, res querypipeline.Result) fanout.DeliveryReport
}

type resultBridge struct {
	router     RoutePublisher
	uowFactory unitofwork.RepositoryFactory
	modelName  string
	logger     logger.ILogger
}

// NewResultBridge publishes pipeline outcomes on the thread scope. A nil
// uowFactory disables recording the response as a thread message.
func NewResultBridge(router RoutePublisher, uowFactory unitofwork.RepositoryFactory, modelName string, log logger.ILogger) IResultBridge {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &resultBridge{router: router, uowFactory: uowFactory, modelName: modelName, logger: log}
}

// BuildLLMResponse maps a terminal result to its wire event. Results and
// Error are mutually exclusive.
func BuildLLMResponse(res querypipeline.Result) protocol.LLMResponse {
	resp := protocol.LLMResponse{
		ThreadID:      res.ThreadID.String(),
		RequestID:     res.RequestID.String(),
		UserID:        res.Principal.String(),
		Query:         res.Query,
		SQL:           res.SQL,
		Status:        string(res.Status),
		ExecutionTime: res.Duration.Seconds(),
	}
	if !res.Succeeded() {
		resp.Error = res.Reason
		return resp
	}

	resp.Columns = res.Columns
	resp.Results = res.Rows
	if resp.Results == nil {
		resp.Results = []map[string]any{}
	}
	resp.RowCount = res.RowCount
	resp.Message = fmt.Sprintf("Query returned %d rows", res.RowCount)
	if res.Truncated {
		resp.Message += " (truncated)"
	}
	return resp
}

func (b *resultBridge) Deliver(channelID uuid.UUID, res querypipeline.Result) fanout.DeliveryReport {
	report := b.router.Publish(fanout.ThreadScope(res.ThreadID.String()), BuildLLMResponse(res))

	b.logger.Debug("ResultBridge", "Delivered query result", map[string]interface{}{
		"request_id": res.RequestID.String(),
		"status":     res.Status,
		"recipients": report.Recipients,
		"dropped":    report.Dropped,
	})

	if b.uowFactory != nil {
		b.record(channelID, res)
	}
	return report
}

// record stores the response in the thread history. Failure is logged only.
func (b *resultBridge) record(channelID uuid.UUID, res querypipeline.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	content := "Query failed: " + res.Reason
	if res.Succeeded() {
		content = querypipeline.FormatResults(res.Columns, res.Rows, querypipeline.DefaultPreviewRows)
	}

	llmContext := datatypes.JSONMap{
		"request_id":     res.RequestID.String(),
		"query":          res.Query,
		"sql":            res.SQL,
		"status":         string(res.Status),
		"row_count":      res.RowCount,
		"execution_time": res.Duration.Seconds(),
	}
	if !res.Succeeded() {
		llmContext["error"] = res.Reason
	}

	threadID := res.ThreadID
	msg := &model.Message{
		ID:           uuid.New(),
		ChannelID:    channelID,
		AuthorID:     model.SystemAuthorID,
		ThreadID:     &threadID,
		Content:      content,
		MessageType:  model.MessageTypeLLMResponse,
		LLMContext:   llmContext,
		LLMModelUsed: b.modelName,
	}

	uow := b.uowFactory.NewUnitOfWork(ctx)
	if err := uow.MessageRepository().RecordMessage(ctx, msg); err != nil {
		b.logger.Warn("ResultBridge", "Failed to record llm_response message", map[string]interface{}{
			"request_id": res.RequestID.String(),
			"error":      err.Error(),
		})
	}
}
