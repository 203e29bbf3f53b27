package output

import "github.com/ericogr/ac-carrier-monitor/pkg/stats"

// Output receives the summary of every flushed statistics window.
type Output interface {
	Publish(stats.Summary) error
	Close() error
}
