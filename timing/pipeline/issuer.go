package pipeline

import (
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/scoreboard"
)

// Issuer takes descriptors from the front end one at a time and requests
// their register accesses from the scoreboard.
type Issuer struct {
	latch IssueLatch
}

// NewIssuer creates an empty Issuer.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Holding returns true if the Issuer holds a descriptor.
func (i *Issuer) Holding() bool {
	return i.latch.Valid
}

// Held returns the held descriptor.
func (i *Issuer) Held() *insts.Descriptor {
	return &i.latch.Desc
}

// Take pulls one descriptor from the front end if the Issuer is empty.
func (i *Issuer) Take(fe FrontEnd) bool {
	if i.latch.Valid {
		return false
	}

	d, ok := fe.Peek()
	if !ok {
		return false
	}
	fe.Accept()

	i.latch.Valid = true
	i.latch.Desc = d
	i.latch.Waited = 0

	return true
}

// Request builds the scoreboard request of the held descriptor. Faulting
// descriptors read nothing and reserve nothing.
func (i *Issuer) Request() scoreboard.Request {
	d := &i.latch.Desc
	if !d.NeedsRegisters() {
		return scoreboard.Request{}
	}

	return scoreboard.Request{
		Read1:   scoreboard.Port{Valid: d.UseRs1, Addr: d.Rs1},
		Read2:   scoreboard.Port{Valid: d.UseRs2, Addr: d.Rs2},
		Reserve: scoreboard.Port{Valid: d.UseRd, Addr: d.Rd},
	}
}

// Refused records one tick in which the held descriptor was not admitted.
func (i *Issuer) Refused() {
	i.latch.Waited++
}

// Release hands the held descriptor on and empties the Issuer.
func (i *Issuer) Release() insts.Descriptor {
	d := i.latch.Desc
	i.latch.Clear()
	return d
}

// Discard drops the held descriptor without replay.
func (i *Issuer) Discard() bool {
	held := i.latch.Valid
	i.latch.Clear()
	return held
}
