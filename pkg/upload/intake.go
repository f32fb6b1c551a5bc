package upload

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Intake admits a batch of files. A batch that would push existing plus
// local entries past MaxFiles is refused whole with *IntakeRejectedError.
// A ctx cancelled before every file is processed admits nothing and
// returns ctx's error.
// Otherwise every file is validated and previewed concurrently and the
// batch is merged in one registry mutation. Files that fail validation
// are kept with StatusError and their reason.
func (u *Uploader) Intake(ctx context.Context, files []Source) error {
	ctx, span := u.tracer.Start(ctx, "upload.Intake",
		trace.WithAttributes(attribute.Int("upload.incoming", len(files))))
	defer span.End()

	if u.registry.Closed() {
		return ErrClosed
	}
	if u.registry.Snapshot().Uploading {
		return ErrBusy
	}
	if len(files) == 0 {
		return nil
	}
	if !u.cfg.Multiple {
		files = files[:1]
	}

	check := u.ceiling(len(files))
	existing, local := u.registry.Counts()
	if err := check(existing, local); err != nil {
		u.rejectIntake(span, len(files), err)
		return err
	}

	batch := make([]*LocalEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range files {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch[i] = u.intakeOne(gctx, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range batch {
			if e != nil {
				e.Preview.Release()
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := u.registry.admit(batch, !u.cfg.Multiple, check); err != nil {
		if errors.Is(err, ErrIntakeRejected) {
			u.rejectIntake(span, len(files), err)
		}
		span.RecordError(err)
		return err
	}

	invalid := 0
	for _, e := range batch {
		if e.Status == StatusError {
			invalid++
		}
	}
	span.SetAttributes(attribute.Int("upload.invalid", invalid))
	u.logger.Info("intake complete", "files", len(batch), "invalid", invalid)

	u.filesChanged()
	return nil
}

// ceiling returns the max-files check for a batch of n files. In single
// mode local entries are replaced and so do not count.
func (u *Uploader) ceiling(n int) func(existing, local int) error {
	return func(existing, local int) error {
		if !u.cfg.Multiple {
			local = 0
		}
		if existing+local+n > u.cfg.MaxFiles {
			return &IntakeRejectedError{
				Max:      u.cfg.MaxFiles,
				Existing: existing,
				Pending:  local,
				Incoming: n,
			}
		}
		return nil
	}
}

func (u *Uploader) rejectIntake(span trace.Span, incoming int, err error) {
	span.SetStatus(codes.Error, err.Error())
	u.logger.Warn("intake rejected", "incoming", incoming, "max", u.cfg.MaxFiles)
	u.observer.IntakeRejected(incoming)
	u.fail(err)
}

// intakeOne validates and previews a single file. The two steps are
// independent; an invalid image still gets its preview.
func (u *Uploader) intakeOne(ctx context.Context, src Source) *LocalEntry {
	e := &LocalEntry{
		ID:     uuid.NewString(),
		Source: src,
		Name:   src.Name(),
		Type:   src.Type(),
		Size:   src.Size(),
		Status: StatusPending,
	}

	var code ValidationCode
	if verr := u.cfg.Policy.Validate(src); verr != nil {
		e.Status = StatusError
		e.Err = verr.Reason
		code = verr.Code
		u.logger.Debug("file rejected", "name", e.Name, "code", string(verr.Code), "reason", verr.Reason)
	}

	if Previewable(e.Type) {
		p, ok := u.previewer.Preview(ctx, src)
		e.Preview = p
		u.observer.PreviewResult(ok)
	}

	u.observer.FileAdmitted(e.Status, code)
	return e
}
