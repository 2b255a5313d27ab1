package count

import (
	"fmt"
	"sync/atomic"

	"github.com/reillywatson/reportsink/sink"
)

type Count struct {
	Produced       atomic.Int64
	Bytes          atomic.Int64
	SetupErrors    atomic.Int64
	ActionErrors   atomic.Int64
	TeardownErrors atomic.Int64
	PublishErrors  atomic.Int64
}

// Failed records err against the counter of the phase it failed in.
func (c *Count) Failed(err error) {
	phase, _ := sink.PhaseOf(err)
	switch phase {
	case sink.PhaseAction:
		c.ActionErrors.Add(1)
	case sink.PhaseTeardown:
		c.TeardownErrors.Add(1)
	case sink.PhasePublish:
		c.PublishErrors.Add(1)
	default:
		c.SetupErrors.Add(1)
	}
}

func (c *Count) Summary(kind string) string {
	producedLine := fmt.Sprintf("[%s] %d produced, %d bytes", kind, c.Produced.Load(), c.Bytes.Load())
	errorsLine := fmt.Sprintf("[%s] %d setup, %d action, %d teardown, %d publish errors", kind,
		c.SetupErrors.Load(), c.ActionErrors.Load(), c.TeardownErrors.Load(), c.PublishErrors.Load())

	return fmt.Sprintf("%s\n%s", producedLine, errorsLine)
}
