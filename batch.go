package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zerotrace/sanitize"
)

// errIncomplete marks a run that finished its pass loop but recorded
// failed regions or a failed verification.
var errIncomplete = errors.New("run completed with failed regions or a verification mismatch")

type batchResult struct {
	Job    jobSpec
	Result *sanitize.RunResult
	Err    error
}

// jobEnv supplies the platform collaborators of a job.
type jobEnv struct {
	open func(path string) (sanitize.Device, error)
	lock func(volume string, log *zap.Logger) sanitize.VolumeLocker
}

func platformEnv() jobEnv {
	return jobEnv{
		open: openRawDevice,
		lock: func(volume string, log *zap.Logger) sanitize.VolumeLocker { return newVolumeLock(volume, log) },
	}
}

// runJobs executes every job on its own goroutine. Each job walks the full
// state machine independently; a failing job does not stop the others. The
// returned error is the first job failure, nil when every job succeeded.
func runJobs(jobs []jobSpec, plan sanitize.Plan, opts sanitize.Options, env jobEnv) ([]batchResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	results := make([]batchResult, len(jobs))

	var g errgroup.Group
	for i, js := range jobs {
		g.Go(func() error {
			jlog := log.With(zap.String("device", js.Device))
			o := opts
			o.Observer = sanitize.NewMilestones(jlog, sanitize.MilestoneEvery)

			job := sanitize.Job{
				Target: js.Device,
				Plan:   plan,
				Open:   func() (sanitize.Device, error) { return env.open(js.Device) },
			}
			if js.Volume != "" {
				job.Volume = env.lock(js.Volume, jlog)
			}

			res, err := sanitize.Execute(job, o)
			results[i] = batchResult{Job: js, Result: res, Err: err}
			switch {
			case err != nil:
				jlog.Error("job failed", zap.Error(err))
				return errors.Wrapf(err, "%s", js.Device)
			case !res.OK():
				jlog.Warn("job incomplete",
					zap.Int64("failed_regions", res.RegionsFailed),
					zap.Bool("verified", res.Verification != nil && res.Verification.Success))
				return errors.Wrapf(errIncomplete, "%s", js.Device)
			}
			jlog.Info("job finished", zap.Int64("bytes_written", res.BytesWritten))
			return nil
		})
	}
	return results, g.Wait()
}
