package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/metrics"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/transcode"
	"github.com/caio-sobreiro/dicomstore/types"
)

// UserOption configures a StorageUser.
type UserOption func(*StorageUser)

// WithUserLogger overrides the logger.
func WithUserLogger(logger *slog.Logger) UserOption {
	return func(u *StorageUser) {
		u.logger = logger
	}
}

// WithNegotiator sets the catalog used to propose presentation contexts.
func WithNegotiator(n *negotiation.Negotiator) UserOption {
	return func(u *StorageUser) {
		u.negotiator = n
	}
}

// WithPipeline sets the pipeline used when no accepted context matches an
// instance's own transfer syntax.
func WithPipeline(p *transcode.Pipeline) UserOption {
	return func(u *StorageUser) {
		u.pipeline = p
	}
}

// WithRate paces C-STORE requests to perSecond instances per second.
// Zero or less disables pacing.
func WithRate(perSecond float64) UserOption {
	return func(u *StorageUser) {
		if perSecond <= 0 {
			u.limiter = nil
			return
		}
		u.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithProgress calls fn with a snapshot of the result after every sub-operation.
func WithProgress(fn func(types.OperationResult)) UserOption {
	return func(u *StorageUser) {
		u.progress = fn
	}
}

// WithUserMetrics records sub-operation outcomes in m.
func WithUserMetrics(m *metrics.Metrics) UserOption {
	return func(u *StorageUser) {
		u.metrics = m
	}
}

// WithConnectConfig sets timeouts and the maximum PDU length of the
// associations the user opens. AE titles and abstract syntaxes are filled
// in by the user.
func WithConnectConfig(cfg Config) UserOption {
	return func(u *StorageUser) {
		u.connect = cfg
	}
}

// StorageUser sends batches of instances to a remote SCP, one association
// per batch.
type StorageUser struct {
	callingAETitle string
	calledAETitle  string

	connect    Config
	negotiator *negotiation.Negotiator
	pipeline   *transcode.Pipeline
	limiter    *rate.Limiter
	progress   func(types.OperationResult)
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewStorageUser creates a storage SCU calling calledAETitle as callingAETitle.
func NewStorageUser(callingAETitle, calledAETitle string, opts ...UserOption) *StorageUser {
	u := &StorageUser{
		callingAETitle: callingAETitle,
		calledAETitle:  calledAETitle,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.negotiator == nil {
		u.negotiator = negotiation.NewNegotiator(nil, nil)
	}
	if u.pipeline == nil {
		u.pipeline = transcode.NewPipeline(nil)
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

// SendOutcome is the completion of an asynchronous send.
type SendOutcome struct {
	Result *types.OperationResult
	Err    error
}

// SendAsync runs Send in a new goroutine. The channel receives exactly one
// outcome and is then closed. Cancel ctx to stop the batch.
func (u *StorageUser) SendAsync(ctx context.Context, address string, instances []*StorageInstance) <-chan SendOutcome {
	out := make(chan SendOutcome, 1)
	go func() {
		defer close(out)
		result, err := u.Send(ctx, address, instances)
		out <- SendOutcome{Result: result, Err: err}
	}()
	return out
}

// errSkip marks a failure confined to one instance; the batch continues.
type errSkip struct{ err error }

func (e *errSkip) Error() string { return e.err.Error() }
func (e *errSkip) Unwrap() error { return e.err }

// Send opens an association to address, stores every instance in order and
// releases the association.
//
// An instance whose response does not arrive within the DIMSE timeout is
// counted as failed and the batch continues on the same association.
// Cancelling ctx between sub-operations releases the association; cancelling
// it while a response is awaited aborts the association and counts the
// in-flight instance as failed. Either way unsent instances stay in
// Remaining. A transport failure aborts the association and counts the
// in-flight and every unsent instance as failed. In every case the result
// is returned with the error.
func (u *StorageUser) Send(ctx context.Context, address string, instances []*StorageInstance) (*types.OperationResult, error) {
	counter := types.NewSubOperationCounter(len(instances))
	snapshot := func() *types.OperationResult {
		r := counter.Snapshot()
		return &r
	}
	if len(instances) == 0 {
		return snapshot(), nil
	}

	sopClasses := make([]string, 0, len(instances))
	for _, inst := range instances {
		sopClasses = append(sopClasses, inst.SOPClassUID())
	}
	cfg := u.connect
	cfg.CallingAETitle = u.callingAETitle
	cfg.CalledAETitle = u.calledAETitle
	cfg.AbstractSyntaxes = sopClasses
	cfg.Negotiator = u.negotiator
	if cfg.Logger == nil {
		cfg.Logger = u.logger
	}

	assoc, err := Connect(ctx, address, cfg)
	if err != nil {
		counter.FailRemaining(err.Error())
		return snapshot(), err
	}
	logger := assoc.logger

	start := time.Now()
	for i, inst := range instances {
		if err := u.wait(ctx); err != nil {
			return u.cancelled(assoc, counter, err)
		}

		rsp, err := u.sendOne(ctx, assoc, inst)
		if err != nil {
			var skip *errSkip
			switch {
			case ctx.Err() != nil:
				logger.Info("Batch cancelled while awaiting response",
					"instance", inst.String(),
					"sent", i)
				_ = assoc.Abort()
				counter.Fail(fmt.Sprintf("%s: canceled while awaiting response", inst.SOPInstanceUID()))
				u.metrics.InstanceSent(types.StatusClassFailure.String())
				u.report(counter)
				return snapshot(), fmt.Errorf("%w: %w", dicomerrors.ErrOperationCanceled, ctx.Err())
			case errors.Is(err, dicomerrors.ErrResponseTimeout):
				counter.Fail(err.Error())
				u.metrics.InstanceSent(types.StatusClassFailure.String())
				u.report(counter)
				continue
			case errors.As(err, &skip):
				logger.Warn("Instance not sent",
					"instance", inst.String(),
					"error", skip.err)
				counter.Fail(skip.err.Error())
				u.metrics.InstanceSent(types.StatusClassFailure.String())
				u.report(counter)
				continue
			}
			logger.Error("Send aborted by transport failure",
				"instance", inst.String(),
				"sent", i,
				"error", err)
			_ = assoc.Abort()
			counter.FailRemaining(err.Error())
			return snapshot(), err
		}

		class := counter.Record(rsp.Status)
		u.metrics.InstanceSent(class.String())
		if class == types.StatusClassFailure {
			desc := fmt.Sprintf("%s: status 0x%04X", inst.SOPInstanceUID(), rsp.Status)
			if rsp.ErrorComment != "" {
				desc += " (" + rsp.ErrorComment + ")"
			}
			counter.Describe(desc)
		}
		if class != types.StatusClassSuccess {
			logger.Warn("C-STORE not successful",
				"instance", inst.String(),
				"status", fmt.Sprintf("0x%04X", rsp.Status),
				"class", class.String(),
				"comment", rsp.ErrorComment)
		}
		u.report(counter)
	}

	result := snapshot()
	logger.Info("Batch sent",
		"total", result.Total,
		"success", result.Success,
		"warning", result.Warning,
		"failure", result.Failure,
		"elapsed", time.Since(start))

	if err := assoc.Release(); err != nil {
		logger.Warn("Release failed", "error", err)
	}
	return result, nil
}

func (u *StorageUser) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}

func (u *StorageUser) cancelled(assoc *Association, counter *types.SubOperationCounter, cause error) (*types.OperationResult, error) {
	result := counter.Snapshot()
	assoc.logger.Info("Batch cancelled",
		"success", result.Success,
		"remaining", result.Remaining)
	if err := assoc.Release(); err != nil {
		assoc.logger.Warn("Release after cancel failed", "error", err)
		_ = assoc.Abort()
	}
	return &result, fmt.Errorf("%w: %w", dicomerrors.ErrOperationCanceled, cause)
}

func (u *StorageUser) report(counter *types.SubOperationCounter) {
	if u.progress != nil {
		u.progress(counter.Snapshot())
	}
}

// sendOne selects a context, transcodes when needed and stores inst.
// Failures that leave the association usable are *errSkip.
func (u *StorageUser) sendOne(ctx context.Context, assoc *Association, inst *StorageInstance) (*CStoreResponse, error) {
	from := inst.TransferSyntaxUID()
	pc, err := u.selectContext(assoc, inst.SOPClassUID(), from)
	if err != nil {
		return nil, &errSkip{err}
	}

	var data []byte
	if pc.TransferSyntax == from {
		data, err = inst.DataSet()
		if err != nil {
			return nil, &errSkip{fmt.Errorf("read %s: %w", inst, err)}
		}
	} else {
		data, err = u.transcode(inst, pc.TransferSyntax)
		if err != nil {
			return nil, &errSkip{err}
		}
	}

	return assoc.SendCStore(ctx, &CStoreRequest{
		SOPClassUID:       inst.SOPClassUID(),
		SOPInstanceUID:    inst.SOPInstanceUID(),
		TransferSyntaxUID: pc.TransferSyntax,
		Data:              data,
		Priority:          types.PriorityMedium,
	})
}

// selectContext prefers the context accepted in the instance's own transfer
// syntax and falls back to the first one the pipeline can reach.
func (u *StorageUser) selectContext(assoc *Association, sopClass, from string) (*types.PresentationContext, error) {
	accepted := assoc.Params().AcceptedFor(sopClass)
	for _, pc := range accepted {
		if pc.TransferSyntax == from {
			return pc, nil
		}
	}
	for _, pc := range accepted {
		if u.pipeline.CanTranscode(from, pc.TransferSyntax) {
			return pc, nil
		}
	}
	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: SOP class %s was not accepted", dicomerrors.ErrNoPresentationCtx, sopClass)
	}
	return nil, fmt.Errorf("%w: no accepted transfer syntax for SOP class %s is reachable from %s",
		dicomerrors.ErrNoPresentationCtx, sopClass, from)
}

func (u *StorageUser) transcode(inst *StorageInstance, to string) ([]byte, error) {
	f, err := inst.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", inst, err)
	}
	converted, err := u.pipeline.Transcode(f, to)
	if err != nil {
		return nil, fmt.Errorf("transcode %s: %w", inst, err)
	}
	return dicom.EncodeDatasetWithTransferSyntax(converted.Dataset, to)
}
