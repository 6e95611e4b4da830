// Package upload runs the three-step submission of a recording: obtain an
// upload slot, write the bytes to storage, then start the pipeline.
package upload

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/types"
)

// Pipeline is the part of the pipeline API the coordinator drives.
// *pipeline.Client implements it.
type Pipeline interface {
	RequestUploadSlot(ctx context.Context, fileExtension string) (types.UploadSlot, error)
	Transfer(ctx context.Context, uploadURL string, body io.Reader, size int64) error
	StartJob(ctx context.Context, jobID string) error
}

type Coordinator struct {
	api Pipeline
	log *logrus.Entry
}

func NewCoordinator(api Pipeline, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		api: api,
		log: logger.OrDiscard(log).WithField("component", "upload"),
	}
}

// Initiate submits f and returns the job id once the pipeline has
// acknowledged the start. onProgress, if set, receives the transfer
// percentage and is only called when the size of f is known.
//
// Every failure is a *pipeline.Error of kind upload_init, upload_transfer or
// pipeline_trigger. No job id is returned unless the trigger succeeded.
func (c *Coordinator) Initiate(ctx context.Context, f File, onProgress func(pct int)) (string, error) {
	if f == nil {
		return "", &pipeline.Error{Kind: pipeline.KindUploadInit, Err: errors.New("no file")}
	}
	ext := ExtensionHint(f.Name())
	size := sizeOf(f)
	log := c.log.WithFields(logrus.Fields{"file": f.Name(), "ext": ext, "bytes": size})

	slot, err := c.api.RequestUploadSlot(ctx, ext)
	if err != nil {
		log.WithField("error", err.Error()).Error("could not obtain upload slot")
		return "", ensureKind(err, pipeline.KindUploadInit, "")
	}
	log = log.WithField("job_id", slot.JobID)

	body := newProgressReader(f, size, onProgress)
	if err := c.api.Transfer(ctx, slot.UploadURL, body, size); err != nil {
		log.WithField("error", err.Error()).Error("upload to storage failed")
		return "", ensureKind(err, pipeline.KindUploadTransfer, slot.JobID)
	}

	if err := c.api.StartJob(ctx, slot.JobID); err != nil {
		log.WithField("error", err.Error()).Error("pipeline did not start")
		return "", ensureKind(err, pipeline.KindPipelineTrigger, slot.JobID)
	}

	log.Info("recording submitted")
	return slot.JobID, nil
}

// ensureKind tags err with the failing step unless it already carries a kind.
func ensureKind(err error, kind pipeline.Kind, jobID string) error {
	if pipeline.KindOf(err) == kind {
		return err
	}
	return &pipeline.Error{Kind: kind, JobID: jobID, Err: err}
}
