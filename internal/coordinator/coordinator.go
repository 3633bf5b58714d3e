// Package coordinator wires the queue topology: each robot and client queue
// gets a typed decode step, a domain handler, and typed replies. It also owns
// the maintenance scheduler and the staged shutdown sequence.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"

	"orbit/internal/broker"
	"orbit/internal/inventory"
	"orbit/internal/logging"
	"orbit/internal/planner"
	"orbit/internal/reconcile"
	"orbit/internal/render"
	"orbit/internal/router"
	"orbit/internal/scan"
)

// Queue names shared with robots and clients.
const (
	QueueBatchRequest     = "batch/request"
	QueueBatchResponse    = "batch/response"
	QueueRobotBatch       = "robot/batch_request"
	QueueRobotScan        = "robot/scan_request"
	QueueScanRequest      = "scan/request"
	QueueScanResponse     = "scan/response"
	QueueScanData         = "scan/data"
	QueueScanCompile      = "scan/compile"
	QueueInventoryRender  = "inventory/render"
	QueueInventoryUpdates = "inventory/updates"
)

// Config tunes optional behavior. Zero intervals disable the maintenance
// jobs; an empty content type publishes JSON.
type Config struct {
	ContentType   string
	RenderRefresh time.Duration
	PartialSweep  time.Duration
	PublishRate   rate.Limit
	PublishBurst  int
}

// Deps carries the wired subsystems. Conn, Store, Planner, Reconciler,
// Ingester, Compiler and Renders are required; Archive is optional.
type Deps struct {
	Conn       broker.Conn
	Store      inventory.Store
	Planner    *planner.Planner
	Reconciler *reconcile.Processor
	Ingester   *scan.Ingester
	Compiler   *scan.Compiler
	Renders    *render.Builder
	Archive    router.Tap
	Logger     *slog.Logger
}

// Coordinator runs the router and the maintenance scheduler over one broker
// connection.
type Coordinator struct {
	cfg       Config
	deps      Deps
	router    *router.Router
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New validates deps and builds the route table.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Conn == nil:
		return nil, errors.New("coordinator: broker connection required")
	case deps.Store == nil:
		return nil, errors.New("coordinator: store required")
	case deps.Planner == nil || deps.Reconciler == nil:
		return nil, errors.New("coordinator: planner and reconciler required")
	case deps.Ingester == nil || deps.Compiler == nil || deps.Renders == nil:
		return nil, errors.New("coordinator: scan and render handlers required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = broker.ContentTypeJSON
	}

	logger := logging.Default(deps.Logger).With("component", "coordinator")

	var limiter *rate.Limiter
	if cfg.PublishRate > 0 {
		burst := cfg.PublishBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.PublishRate, burst)
	}

	c := &Coordinator{
		cfg:  cfg,
		deps: deps,
		router: router.New(router.Config{
			Conn:    deps.Conn,
			Logger:  deps.Logger,
			Limiter: limiter,
			Tap:     deps.Archive,
		}),
		logger: logger,
	}

	c.router.Handle(QueueBatchRequest, c.handleBatchRequest)
	c.router.Handle(QueueBatchResponse, c.handleBatchResponse)
	c.router.Handle(QueueScanRequest, c.handleScanRequest)
	c.router.Handle(QueueScanResponse, c.handleScanResponse)
	c.router.Handle(QueueScanData, c.handleScanData)
	c.router.Handle(QueueScanCompile, c.handleScanCompile)
	c.router.Handle(QueueInventoryRender, c.handleRenderRequest)
	return c, nil
}

// Ready is closed once every queue subscription is live.
func (c *Coordinator) Ready() <-chan struct{} { return c.router.Ready() }

// Run serves until ctx is canceled, then shuts down in stages: intake stops
// with the subscriptions, the router waits out its workers, the archive is
// flushed, and the connection is closed last.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.startMaintenance(ctx); err != nil {
		return err
	}

	runErr := c.router.Run(ctx)

	if c.scheduler != nil {
		if err := c.scheduler.Shutdown(); err != nil {
			c.logger.Warn("scheduler shutdown failed", "error", err)
		}
	}
	if closer, ok := c.deps.Archive.(io.Closer); ok && closer != nil {
		if err := closer.Close(); err != nil {
			c.logger.Warn("archive close failed", "error", err)
		}
	}
	if err := c.deps.Conn.Close(); err != nil {
		c.logger.Warn("broker close failed", "error", err)
	}
	c.logger.Info("coordinator stopped")
	return runErr
}

func (c *Coordinator) startMaintenance(ctx context.Context) error {
	if c.cfg.RenderRefresh <= 0 && c.cfg.PartialSweep <= 0 {
		return nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("maintenance scheduler: %w", err)
	}
	if c.cfg.RenderRefresh > 0 {
		_, err = s.NewJob(
			gocron.DurationJob(c.cfg.RenderRefresh),
			gocron.NewTask(c.refreshRenders, ctx),
			gocron.WithName("render-refresh"),
		)
		if err != nil {
			return fmt.Errorf("render refresh job: %w", err)
		}
	}
	if c.cfg.PartialSweep > 0 {
		_, err = s.NewJob(
			gocron.DurationJob(c.cfg.PartialSweep),
			gocron.NewTask(c.sweepPartials, ctx),
			gocron.WithName("partial-sweep"),
		)
		if err != nil {
			return fmt.Errorf("partial sweep job: %w", err)
		}
	}
	c.scheduler = s
	s.Start()
	c.logger.Info("maintenance started",
		"render_refresh", c.cfg.RenderRefresh, "partial_sweep", c.cfg.PartialSweep)
	return nil
}

func (c *Coordinator) refreshRenders(ctx context.Context) {
	if err := c.deps.Renders.Build(ctx, inventory.RenderScanRequest{}); err != nil {
		c.logger.Warn("render refresh failed", "error", err)
	}
}

// sweepPartials drops partial detections for scans that already produced
// canonical items. Compiled scans never read their partials again.
func (c *Coordinator) sweepPartials(ctx context.Context) {
	scanIDs, err := c.deps.Store.DistinctItemScanIDs(ctx)
	if err != nil {
		c.logger.Warn("partial sweep failed", "error", err)
		return
	}
	for _, scanID := range scanIDs {
		if scanID == "" {
			continue
		}
		if err := c.deps.Store.DeletePartials(ctx, scanID); err != nil {
			c.logger.Warn("partial sweep failed", "scan_id", scanID, "error", err)
		}
	}
}

func (c *Coordinator) handleBatchRequest(ctx context.Context, msg broker.Message) ([]broker.Message, error) {
	var req planner.BatchRequest
	if err := broker.Decode(msg, &req); err != nil {
		return nil, router.Malformed(err)
	}
	batch, err := c.deps.Planner.PlanBatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("plan batch: %w", err)
	}
	reply, err := c.reply(QueueRobotBatch, batch)
	if err != nil {
		return nil, err
	}
	c.logger.Info("batch planned", "batch_id", batch.BatchID, "jobs", len(batch.Jobs))
	return []broker.Message{reply}, nil
}

func (c *Coordinator) handleBatchResponse(ctx context.Context, msg broker.Message) ([]broker.Message, error) {
	var resp reconcile.RobotBatchResponse
	if err := broker.Decode(msg, &resp); err != nil {
		return nil, router.Malformed(err)
	}
	updates, err := c.deps.Reconciler.Process(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("reconcile batch: %w", err)
	}
	if updates == nil {
		// Subscribers expect an array even when nothing changed.
		updates = []inventory.ItemUpdate{}
	}
	reply, err := c.reply(QueueInventoryUpdates, updates)
	if err != nil {
		return nil, err
	}
	return []broker.Message{reply}, nil
}

func (c *Coordinator) handleScanRequest(_ context.Context, msg broker.Message) ([]broker.Message, error) {
	var req scan.Request
	if err := broker.Decode(msg, &req); err != nil {
		return nil, router.Malformed(err)
	}
	reply, err := c.reply(QueueRobotScan, req.RobotRequest())
	if err != nil {
		return nil, err
	}
	return []broker.Message{reply}, nil
}

func (c *Coordinator) handleScanResponse(_ context.Context, msg broker.Message) ([]broker.Message, error) {
	var resp scan.RobotResponse
	if err := broker.Decode(msg, &resp); err != nil {
		return nil, router.Malformed(err)
	}
	c.logger.Info("scan acknowledged",
		"success", resp.Header.Success,
		"error_code", resp.Header.ErrorCode,
		"error_message", resp.Header.ErrorMessage)
	return nil, nil
}

func (c *Coordinator) handleScanData(ctx context.Context, msg broker.Message) ([]broker.Message, error) {
	var data scan.Data
	if err := broker.Decode(msg, &data); err != nil {
		return nil, router.Malformed(err)
	}
	if err := c.deps.Ingester.Ingest(ctx, data); err != nil {
		return nil, fmt.Errorf("ingest scan data: %w", err)
	}
	return nil, nil
}

func (c *Coordinator) handleScanCompile(ctx context.Context, msg broker.Message) ([]broker.Message, error) {
	var req scan.CompileRequest
	if err := broker.Decode(msg, &req); err != nil {
		return nil, router.Malformed(err)
	}
	if err := c.deps.Compiler.Compile(ctx, req); err != nil {
		return nil, fmt.Errorf("compile scan: %w", err)
	}
	return nil, nil
}

func (c *Coordinator) handleRenderRequest(ctx context.Context, msg broker.Message) ([]broker.Message, error) {
	var req inventory.RenderScanRequest
	if err := broker.Decode(msg, &req); err != nil {
		return nil, router.Malformed(err)
	}
	if err := c.deps.Renders.Build(ctx, req); err != nil {
		return nil, fmt.Errorf("build renders: %w", err)
	}
	return nil, nil
}

func (c *Coordinator) reply(topic string, v any) (broker.Message, error) {
	body, err := broker.Encode(v, c.cfg.ContentType)
	if err != nil {
		return broker.Message{}, fmt.Errorf("encode %s: %w", topic, err)
	}
	return broker.Message{Topic: topic, Body: body, ContentType: c.cfg.ContentType}, nil
}
