package service

import (
	"encoding/json"

	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/pkg/querypipeline"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const AuditTopic = "query_audit"

// AuditPublisher hands audit entries to the in-process queue without
// blocking the pipeline.
type AuditPublisher struct {
	pub     message.Publisher
	topic   string
	metrics *metrics.Metrics
	logger  logger.ILogger
}

var _ querypipeline.Auditor = (*AuditPublisher)(nil)

func NewAuditPublisher(pub message.Publisher, topic string, m *metrics.Metrics, log logger.ILogger) *AuditPublisher {
	if topic == "" {
		topic = AuditTopic
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuditPublisher{pub: pub, topic: topic, metrics: m, logger: log}
}

func (a *AuditPublisher) Record(entry querypipeline.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		a.fail(entry, err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)

	go func() {
		if err := a.pub.Publish(a.topic, msg); err != nil {
			a.fail(entry, err)
		}
	}()
}

func (a *AuditPublisher) fail(entry querypipeline.AuditEntry, err error) {
	a.metrics.AuditFailed()
	a.logger.Error("AuditPublisher", "Failed to enqueue audit entry", map[string]interface{}{
		"request_id": entry.RequestID.String(),
		"error":      err.Error(),
	})
}
