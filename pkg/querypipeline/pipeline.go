// Package querypipeline turns a natural-language question into a vetted,
// bounded, read-only warehouse query and reports exactly one terminal result.
package querypipeline

import (
	"context"
	"errors"
	"time"

	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/pkg/llm"
	"chatserver-be/pkg/sqlgate"
	"chatserver-be/pkg/warehouse"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type State string

const (
	StateReceived       State = "received"
	StateSchemaGathered State = "schema-gathered"
	StateGenerated      State = "generated"
	StateValidated      State = "validated"
	StateExecuting      State = "executing"
	StateCompleted      State = "completed"
	StateError          State = "error"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// User-facing reasons for a terminal error state.
const (
	ReasonNoPermittedTables    = "no permitted tables"
	ReasonAllowListUnavailable = "allow-list unavailable"
	ReasonGenerationFailed     = "generation failed"
	ReasonUnsafeQuery          = "rejected: unsafe query"
	ReasonTableNotAllowed      = "rejected: table not in allow-list"
	ReasonExecutionFailed      = "execution failed"
	ReasonTimedOut             = "request timed out"
)

const (
	DefaultRowLimit          = 1000
	DefaultExecTimeout       = 30 * time.Second
	DefaultGenerationTimeout = 20 * time.Second
	DefaultTotalTimeout      = 45 * time.Second
	DefaultMaxSchemaTables   = 10
)

type Request struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	Principal uuid.UUID
	Text      string
	AllowList []string

	// AllowListErr is set when the allow-list could not be read. The request
	// then fails without reaching the generator.
	AllowListErr error
}

// Result is the single terminal outcome of a request. Rows is set only when
// Status is succeeded; Reason only when it is not.
type Result struct {
	RequestID uuid.UUID
	ThreadID  uuid.UUID
	Principal uuid.UUID
	Query     string
	SQL       string
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
	Status    Status
	Reason    string
	State     State
	// FailedAt is the last state reached before an error; empty on success.
	FailedAt State
	// Detail carries the upstream error text for logs and audit only.
	Detail string
}

func (r Result) Succeeded() bool { return r.Status == StatusSucceeded }

// Generator is the text-generation service.
type Generator interface {
	Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error)
}

type Config struct {
	RowLimit          int
	ExecTimeout       time.Duration
	GenerationTimeout time.Duration
	// TotalTimeout bounds generation plus execution. A request that runs past
	// it is abandoned and whatever arrives later is discarded.
	TotalTimeout    time.Duration
	MaxSchemaTables int
}

func (c Config) withDefaults() Config {
	if c.RowLimit <= 0 {
		c.RowLimit = DefaultRowLimit
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = DefaultExecTimeout
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = DefaultGenerationTimeout
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = DefaultTotalTimeout
	}
	if c.MaxSchemaTables <= 0 {
		c.MaxSchemaTables = DefaultMaxSchemaTables
	}
	return c
}

type Deps struct {
	Schema    warehouse.SchemaProvider
	Generator Generator
	Executor  warehouse.Executor
	Auditor   Auditor
	Metrics   *metrics.Metrics
	Logger    logger.ILogger
}

type Pipeline struct {
	schema  warehouse.SchemaProvider
	gen     Generator
	exec    warehouse.Executor
	audit   Auditor
	metrics *metrics.Metrics
	logger  logger.ILogger
	tracer  trace.Tracer
	cfg     Config
	now     func() time.Time
}

func New(deps Deps, cfg Config) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	audit := deps.Auditor
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Pipeline{
		schema:  deps.Schema,
		gen:     deps.Generator,
		exec:    deps.Executor,
		audit:   audit,
		metrics: deps.Metrics,
		logger:  log,
		tracer:  otel.Tracer("chatserver-be/querypipeline"),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

func (p *Pipeline) Config() Config { return p.cfg }

// Run drives req to a terminal state. It does not inherit any caller
// deadline: the request completes or times out on its own clock.
func (p *Pipeline) Run(req Request) Result {
	start := p.now()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TotalTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "querypipeline.Run", trace.WithAttributes(
		attribute.String("request.id", req.ID.String()),
		attribute.String("thread.id", req.ThreadID.String()),
		attribute.Int("allow_list.size", len(req.AllowList)),
	))
	defer span.End()

	res := p.run(ctx, req)
	res.RequestID = req.ID
	res.ThreadID = req.ThreadID
	res.Principal = req.Principal
	res.Query = req.Text
	res.Duration = p.now().Sub(start)

	span.SetAttributes(
		attribute.String("query.status", string(res.Status)),
		attribute.String("query.state", string(res.State)),
		attribute.Int("query.rows", res.RowCount),
	)
	if !res.Succeeded() {
		span.SetStatus(codes.Error, res.Reason)
	}

	p.metrics.QueryFinished(string(res.Status), res.Reason, res.Duration)
	p.audit.Record(NewAuditEntry(res, p.now()))

	fields := map[string]interface{}{
		"request_id":  req.ID.String(),
		"thread_id":   req.ThreadID.String(),
		"status":      res.Status,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Succeeded() {
		fields["rows"] = res.RowCount
		p.logger.Info("QUERY_PIPELINE", "Query completed", fields)
	} else {
		fields["reason"] = res.Reason
		fields["failed_at"] = res.FailedAt
		fields["detail"] = res.Detail
		p.logger.Warn("QUERY_PIPELINE", "Query ended in error", fields)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request) Result {
	state := StateReceived
	fail := func(status Status, reason string, err error) Result {
		r := Result{Status: status, Reason: reason, State: StateError, FailedAt: state}
		if err != nil {
			r.Detail = err.Error()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.Status, r.Reason = StatusFailed, ReasonTimedOut
			}
		}
		return r
	}

	if req.AllowListErr != nil {
		return fail(StatusFailed, ReasonAllowListUnavailable, req.AllowListErr)
	}
	if len(req.AllowList) == 0 {
		return fail(StatusRejected, ReasonNoPermittedTables, nil)
	}

	// Schema context is advisory; the prompt still names the tables without it.
	tables := req.AllowList
	if len(tables) > p.cfg.MaxSchemaTables {
		tables = tables[:p.cfg.MaxSchemaTables]
	}
	var schemas []warehouse.TableSchema
	if p.schema != nil {
		var err error
		schemas, err = await(ctx, func(ctx context.Context) ([]warehouse.TableSchema, error) {
			return p.schema.Describe(ctx, tables)
		})
		if err != nil {
			if ctx.Err() != nil {
				return fail(StatusFailed, ReasonGenerationFailed, err)
			}
			p.logger.Warn("QUERY_PIPELINE", "Schema context unavailable", map[string]interface{}{
				"request_id": req.ID.String(),
				"error":      err.Error(),
			})
		}
	}
	state = StateSchemaGathered

	prompt := BuildPrompt(req.Text, req.AllowList, schemas)
	genCtx, cancelGen := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	raw, err := await(genCtx, func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, prompt, llm.WithSystemPrompt(SystemPrompt))
	})
	cancelGen()
	if err != nil {
		return fail(StatusFailed, ReasonGenerationFailed, err)
	}
	sql := ExtractSQL(raw)
	if sql == "" {
		return fail(StatusFailed, ReasonGenerationFailed, errors.New("no SQL statement in model output"))
	}
	state = StateGenerated

	if !sqlgate.IsPermitted(sql) {
		r := fail(StatusRejected, ReasonUnsafeQuery, nil)
		r.SQL = sql
		return r
	}
	if !sqlgate.EnforceTableAllowList(sql, req.AllowList) {
		r := fail(StatusRejected, ReasonTableNotAllowed, nil)
		r.SQL = sql
		return r
	}
	state = StateValidated

	sql = sqlgate.EnsureLimit(sql, p.cfg.RowLimit)
	state = StateExecuting
	out, err := await(ctx, func(ctx context.Context) (*warehouse.Result, error) {
		return p.exec.Execute(ctx, sql, p.cfg.ExecTimeout, p.cfg.RowLimit)
	})
	if err != nil {
		r := fail(StatusFailed, ReasonExecutionFailed, err)
		r.SQL = sql
		return r
	}

	return Result{
		SQL:       sql,
		Columns:   out.Columns,
		Rows:      out.Rows,
		RowCount:  len(out.Rows),
		Truncated: out.Truncated,
		Status:    StatusSucceeded,
		State:     StateCompleted,
	}
}

// await runs fn and returns early when ctx is done. A result that arrives
// afterwards is dropped.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v: v, err: err}
	}()

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
