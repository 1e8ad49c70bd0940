package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caio-sobreiro/dicomstore/dicom"
	"github.com/caio-sobreiro/dicomstore/events"
	"github.com/caio-sobreiro/dicomstore/interfaces"
	"github.com/caio-sobreiro/dicomstore/metrics"
	"github.com/caio-sobreiro/dicomstore/storage"
	"github.com/caio-sobreiro/dicomstore/types"
)

// StoreOption configures a StoreService.
type StoreOption func(*StoreService)

// WithNotifier publishes an event for every stored instance.
func WithNotifier(n events.Notifier) StoreOption {
	return func(s *StoreService) {
		s.notifier = n
	}
}

// WithMetrics records every answered request in m.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *StoreService) {
		s.metrics = m
	}
}

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *StoreService) {
		s.logger = logger
	}
}

// StoreService handles C-STORE requests.
//
// The data set is decoded in the negotiated transfer syntax to find the
// study, series and SOP instance UIDs, then persisted through a
// storage.Store. Statuses:
//   - 0x0000 stored;
//   - 0xB007 stored, but the data set's SOP class differs from the command's;
//   - 0x0110 the data set could not be decoded or lacks an identifier (nothing is written);
//   - 0xA700 the store failed.
type StoreService struct {
	store    storage.Store
	notifier events.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStoreService creates a C-STORE service writing to store.
func NewStoreService(store storage.Store, opts ...StoreOption) *StoreService {
	s := &StoreService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = events.NopNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// HandleDIMSE stores one instance and returns the C-STORE-RSP.
//
// This method implements the interfaces.ServiceHandler interface.
func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	start := time.Now()
	status, comment, ev := s.storeInstance(ctx, msg, data)
	class := types.ClassifyStatus(status)
	s.metrics.InstanceReceived(class.String(), len(data), time.Since(start))

	logArgs := []any{
		"message_id", msg.MessageID,
		"sop_instance_uid", msg.AffectedSOPInstanceUID,
		"status", fmt.Sprintf("0x%04X", status),
	}
	switch class {
	case types.StatusClassSuccess:
		s.logger.InfoContext(ctx, "C-STORE request successful", logArgs...)
	case types.StatusClassWarning:
		s.logger.WarnContext(ctx, "C-STORE stored with warning", append(logArgs, "comment", comment)...)
	default:
		s.logger.ErrorContext(ctx, "C-STORE request failed", append(logArgs, "comment", comment)...)
	}

	if ev != nil {
		ev.Status = status
		if err := s.notifier.InstanceStored(ctx, *ev); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish stored-instance event",
				"sop_instance_uid", ev.SOPInstanceUID,
				"error", err)
		}
	}
	return NewCStoreResponse(msg, status, comment), nil, nil
}

func (s *StoreService) storeInstance(ctx context.Context, msg *types.Message, data []byte) (uint16, string, *events.InstanceStored) {
	if len(data) == 0 {
		return types.StatusProcessingFailure, "C-STORE-RQ without data set", nil
	}
	ds, err := dicom.ParseDatasetWithTransferSyntax(data, msg.TransferSyntaxUID)
	if err != nil {
		return types.StatusProcessingFailure, fmt.Sprintf("cannot decode data set: %v", err), nil
	}

	inst := &storage.Instance{
		SOPClassUID:       ds.GetString(dicom.TagSOPClassUID),
		SOPInstanceUID:    ds.GetString(dicom.TagSOPInstanceUID),
		StudyInstanceUID:  ds.GetString(dicom.TagStudyInstanceUID),
		SeriesInstanceUID: ds.GetString(dicom.TagSeriesInstanceUID),
		TransferSyntaxUID: msg.TransferSyntaxUID,
		Data:              data,
	}
	for _, required := range []struct{ name, value string }{
		{"SOP Instance UID", inst.SOPInstanceUID},
		{"Series Instance UID", inst.SeriesInstanceUID},
		{"Study Instance UID", inst.StudyInstanceUID},
	} {
		if required.value == "" {
			return types.StatusProcessingFailure, "data set has no " + required.name, nil
		}
	}
	patientName, err := ds.GetDecodedString(dicom.TagPatientName)
	if err != nil {
		return types.StatusProcessingFailure, fmt.Sprintf("cannot decode patient name: %v", err), nil
	}

	status, comment := uint16(types.StatusSuccess), ""
	if inst.SOPClassUID != msg.AffectedSOPClassUID {
		status = types.StatusDataSetDoesNotMatchSOP
		comment = fmt.Sprintf("data set SOP class %s differs from %s", inst.SOPClassUID, msg.AffectedSOPClassUID)
		if inst.SOPClassUID == "" {
			inst.SOPClassUID = msg.AffectedSOPClassUID
		}
	}

	ev := &events.InstanceStored{
		SOPClassUID:       inst.SOPClassUID,
		SOPInstanceUID:    inst.SOPInstanceUID,
		StudyInstanceUID:  inst.StudyInstanceUID,
		SeriesInstanceUID: inst.SeriesInstanceUID,
		TransferSyntaxUID: inst.TransferSyntaxUID,
		PatientName:       patientName,
		Size:              len(data),
	}
	if params, ok := interfaces.AssociationFromContext(ctx); ok {
		inst.SourceAETitle = params.CallingAETitle
		ev.AssociationID = params.AssociationID
		ev.CallingAETitle = params.CallingAETitle
		ev.CalledAETitle = params.CalledAETitle
	}

	location, err := s.store.Store(ctx, inst)
	if err != nil {
		if errors.Is(err, storage.ErrUnsafeUID) {
			return types.StatusProcessingFailure, err.Error(), nil
		}
		return types.StatusRefusedOutOfResources, err.Error(), nil
	}
	ev.Location = location
	ev.StoredAt = time.Now().UTC()

	s.logger.DebugContext(ctx, "Instance persisted",
		"sop_instance_uid", inst.SOPInstanceUID,
		"patient_name", patientName,
		"location", location)
	return status, comment, ev
}
