package sanitize

import (
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultBlockSize is the region size used when Options.BlockSize is zero.
const DefaultBlockSize = 16 << 20

// maxRecordedFailures bounds RunResult.Failures; RegionsFailed keeps counting.
const maxRecordedFailures = 1024

// Options tune a run. The zero value is usable.
type Options struct {
	BlockSize int
	// Verify re-reads every targeted region after the pass loop.
	Verify bool
	// VerifySkipped also checks that regions selective purge left alone
	// still read as zero.
	VerifySkipped bool
	// EndOfDevice classifies platform write errors meaning "device ended".
	EndOfDevice func(error) bool
	Logger      *zap.Logger
	Observer    Observer
	OnState     func(State)
}

func (o Options) withDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// RegionFailure records a region-scoped read or write failure.
type RegionFailure struct {
	Region Region
	Err    error
}

// RunResult aggregates one run.
type RunResult struct {
	Mode        Mode
	BlockSize   int
	Length      int64 // bytes traversed; equals the device length when known
	LengthKnown bool
	EndOfDevice bool // an unknown-length device ran out during writing

	RegionsVisited int64
	RegionsSkipped int64
	RegionsWritten int64
	RegionsFailed  int64
	BytesWritten   int64
	Failures       []RegionFailure

	Verification *VerificationResult
}

// OK reports a run with no failed region and no failed verification.
func (r *RunResult) OK() bool {
	if r == nil || r.RegionsFailed > 0 {
		return false
	}
	return r.Verification == nil || r.Verification.Success
}

// Engine runs one plan over one device at a time.
type Engine struct {
	plan Plan
	opts Options
	log  *zap.Logger
}

func NewEngine(plan Plan, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if opts.BlockSize <= 0 {
		return nil, errors.Newf("block size must be positive, got %d", opts.BlockSize)
	}
	if len(plan.Passes) == 0 {
		return nil, errors.New("pass plan is empty")
	}
	return &Engine{
		plan: plan,
		opts: opts,
		log:  opts.Logger.With(zap.String("mode", string(plan.Mode)), zap.Int("block_size", opts.BlockSize)),
	}, nil
}

// run holds the state of one Engine.Run call.
type run struct {
	*Engine
	dev    Device
	buf    []byte
	res    *RunResult
	writer *Writer
}

// Run sweeps dev region by region: scan, then skip or apply every pass and
// flush, then optionally verify. Region-scoped write failures are recorded
// and the sweep moves on; a scan read failure stops the run with the partial
// result and a ReadFailure error.
func (e *Engine) Run(dev Device) (*RunResult, error) {
	length, err := deviceLength(dev)
	if err != nil {
		e.log.Warn("length query failed, walking device until exhaustion", zap.Error(err))
	}
	r := &run{
		Engine: e,
		dev:    dev,
		buf:    make([]byte, e.opts.BlockSize),
		res: &RunResult{
			Mode:        e.plan.Mode,
			BlockSize:   e.opts.BlockSize,
			Length:      length,
			LengthKnown: length >= 0,
		},
		writer: NewWriter(dev, e.opts.EndOfDevice),
	}
	e.state(StateWipe)
	e.log.Info("pass loop started", zap.Int64("length", length), zap.Stringer("plan", e.plan))

	end, err := r.sweep(length)
	if !r.res.LengthKnown {
		r.res.Length = end
	}
	if err != nil {
		e.log.Error("scan aborted", zap.Error(err))
		return r.res, err
	}
	e.log.Info("pass loop finished",
		zap.Int64("visited", r.res.RegionsVisited),
		zap.Int64("skipped", r.res.RegionsSkipped),
		zap.Int64("written", r.res.RegionsWritten),
		zap.Int64("failed", r.res.RegionsFailed),
		zap.Int64("bytes_written", r.res.BytesWritten),
	)

	if e.opts.Verify {
		e.state(StateVerify)
		v := r.verify(r.res.Length)
		r.res.Verification = &v
		if v.Success {
			e.log.Info("verification passed", zap.Int64("bytes_verified", v.BytesVerified))
		} else {
			e.log.Error("verification failed", zap.Int64("bytes_verified", v.BytesVerified), zap.Error(v.Failure()))
		}
	}
	return r.res, nil
}

// sweep walks the device and returns the offset it stopped at.
func (r *run) sweep(length int64) (int64, error) {
	sc := NewScanner(r.dev, r.opts.BlockSize, length)
	layoutOnly := length >= 0 && !r.plan.Select.NeedsContent()
	for {
		var (
			blk Block
			err error
		)
		if layoutOnly {
			blk.Region, err = sc.NextRegion()
			blk.Dirty = true
		} else {
			blk, err = sc.Next(r.buf)
		}
		if err == io.EOF {
			return sc.Offset(), nil
		}
		if err != nil {
			return sc.Offset(), err
		}
		if !r.plan.Select.Wants(blk) {
			r.res.RegionsVisited++
			r.res.RegionsSkipped++
			r.observe(PhaseScan, blk.Region, OutcomeScanned)
			r.observe(PhaseWrite, blk.Region, OutcomeSkipped)
			continue
		}
		written, eod := r.overwrite(blk.Region)
		if written > 0 || !eod {
			r.res.RegionsVisited++
		}
		if eod {
			r.res.EndOfDevice = true
			r.log.Info("device ended during write", zap.Int64("offset", blk.Offset+written))
			return blk.Offset + written, nil
		}
		if r.plan.Select == SelectFirst {
			return blk.End(), nil
		}
	}
}

// overwrite applies every pass to rg and flushes. It returns the bytes the
// region turned out to hold and whether the device ended inside it. The scan
// event is emitted once pass 1 has shown the region exists.
func (r *run) overwrite(rg Region) (int64, bool) {
	n := rg.Length
	eod := false
	for i, p := range r.plan.Passes {
		buf := r.buf[:n]
		p.Fill(buf, rg.Offset)
		wn, err := r.writer.Write(rg.Offset, buf)
		r.res.BytesWritten += int64(wn)

		if errors.Is(err, ErrEndOfDevice) {
			switch {
			case r.res.LengthKnown:
				err = newError(WriteFailure, rg.Offset+int64(wn), errors.Wrap(err, "device shorter than its reported length"))
			case i > 0:
				err = newError(WriteFailure, rg.Offset+int64(wn), errors.Wrapf(err, "pass %d accepted fewer bytes than pass 1", i+1))
			default:
				// later passes cover only what the device accepted
				n, eod, err = int64(wn), true, nil
				if n == 0 {
					// nothing of this region was writable: it lies past the end
					return 0, true
				}
			}
		}
		if i == 0 {
			r.observe(PhaseScan, Region{Offset: rg.Offset, Length: n}, OutcomeScanned)
		}
		if err != nil {
			r.fail(rg, err, zap.Int("pass", i+1), zap.Stringer("pattern", p))
			return n, eod
		}
		r.log.Debug("pass written", zap.Int64("offset", rg.Offset), zap.Int64("length", n), zap.Int("pass", i+1))
	}
	if err := r.dev.Flush(); err != nil {
		r.fail(rg, newError(WriteFailure, rg.Offset, errors.Wrap(err, "flush")))
		return n, eod
	}
	r.res.RegionsWritten++
	r.observe(PhaseWrite, Region{Offset: rg.Offset, Length: n}, OutcomeWritten)
	return n, eod
}

func (r *run) fail(rg Region, err error, fields ...zap.Field) {
	r.res.RegionsFailed++
	if len(r.res.Failures) < maxRecordedFailures {
		r.res.Failures = append(r.res.Failures, RegionFailure{Region: rg, Err: err})
	}
	fields = append(fields, zap.Int64("offset", rg.Offset), zap.Int64("length", rg.Length), zap.Error(err))
	r.log.Warn("region failed, continuing", fields...)
	r.observe(PhaseWrite, rg, OutcomeFailed)
}

// verify re-reads [0, end) region by region. Regions the selection wrote
// must hold the final pass. Under selective purge a region that reads all
// zero is one the sweep skipped; it counts as verified only with
// VerifySkipped and is otherwise passed over. Any other content must be the
// final pass, so dropped writes on a dirty region still surface.
func (r *run) verify(end int64) VerificationResult {
	total := passed()
	final := r.plan.Final()
	zero := ConstantPass(0x00)
	checkSkipped := r.opts.VerifySkipped && r.plan.Select == SelectDirty

	sc := NewScanner(r.dev, r.opts.BlockSize, end)
	for {
		blk, err := sc.Next(r.buf)
		if err == io.EOF {
			return total
		}
		if err != nil {
			total.Success = false
			total.MismatchOffset = -1
			total.Err = err
			return total
		}
		want := final
		if r.plan.Select == SelectDirty && !blk.Dirty {
			if !checkSkipped {
				continue
			}
			want = zero
		}
		if !total.check(blk, want) {
			r.observe(PhaseVerify, blk.Region, OutcomeMismatch)
			return total
		}
		r.observe(PhaseVerify, blk.Region, OutcomeVerified)
		if r.plan.Select == SelectFirst {
			return total
		}
	}
}

func (r *run) observe(phase Phase, rg Region, o Outcome) {
	if r.opts.Observer != nil {
		r.opts.Observer.Observe(Event{Phase: phase, Region: rg, Outcome: o})
	}
}

func (e *Engine) state(s State) {
	if e.opts.OnState != nil {
		e.opts.OnState(s)
	}
}
