package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/ac-carrier-monitor/pkg/output"
	"github.com/ericogr/ac-carrier-monitor/pkg/stats"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(s stats.Summary) error {
	w := c.w
	if w == nil {
		w = os.Stdout
	}
	ts := s.End.Format(time.RFC3339)
	if s.Empty() {
		_, err := fmt.Fprintf(w, "%s no samples collected\n", ts)
		return err
	}
	_, err := fmt.Fprintf(w, "%s samples=%d frequency=%.3fHz hi=%.4fV lo=%.4fV\n", ts, s.Samples, s.MeanFrequency, s.MeanMax, s.MeanMin)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
