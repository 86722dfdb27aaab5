package sanitize

import (
	"fmt"
	"io"
)

// VerificationResult is the outcome of a verification phase. On failure
// MismatchOffset and Observed describe the first offending byte; when a
// read failed instead, Err is set and MismatchOffset is -1.
type VerificationResult struct {
	Success        bool
	BytesVerified  int64
	MismatchOffset int64
	Observed       byte
	Expected       byte
	Err            error
}

func passed() VerificationResult {
	return VerificationResult{Success: true, MismatchOffset: -1}
}

// Verifier re-reads ranges and compares every byte with a pass pattern.
type Verifier struct {
	r         io.ReaderAt
	blockSize int
}

func NewVerifier(r io.ReaderAt, blockSize int) *Verifier {
	return &Verifier{r: r, blockSize: blockSize}
}

// VerifyByte checks that every byte of rg equals b.
func (v *Verifier) VerifyByte(buf []byte, b byte, rg Region) VerificationResult {
	return v.Verify(buf, ConstantPass(b), rg)
}

// Verify reads rg sequentially in block-sized chunks through buf and stops
// at the first byte that differs from want. A negative rg.Length reads until
// the device is exhausted.
func (v *Verifier) Verify(buf []byte, want Pass, rg Region) VerificationResult {
	res := passed()
	sc := newRangeScanner(v.r, v.blockSize, rg)
	for {
		b, err := sc.Next(buf)
		if err == io.EOF {
			return res
		}
		if err != nil {
			res.Success = false
			res.Err = err
			return res
		}
		if !res.check(b, want) {
			return res
		}
	}
}

// check compares one block with want. On the first differing byte it
// records the mismatch and returns false.
func (r *VerificationResult) check(b Block, want Pass) bool {
	i := want.Mismatch(b.Data, b.Offset)
	if i < 0 {
		r.BytesVerified += b.Length
		return true
	}
	r.Success = false
	r.BytesVerified += int64(i)
	r.MismatchOffset = b.Offset + int64(i)
	r.Observed = b.Data[i]
	r.Expected = want.Expected(b.Offset, i)
	return false
}

// Failure converts an unsuccessful result into an error.
func (r VerificationResult) Failure() error {
	if r.Success {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return &Error{Kind: VerificationMismatch, Offset: r.MismatchOffset, Err: mismatchDetail{r.Observed, r.Expected}}
}

type mismatchDetail struct{ observed, expected byte }

func (m mismatchDetail) Error() string {
	return fmt.Sprintf("observed 0x%02X, expected 0x%02X", m.observed, m.expected)
}
