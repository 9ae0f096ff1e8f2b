/*
File Name:  log.go

Structured logging. The teacher wires its own stdout multiWriter
(Filter.go newMultiWriter) in front of a bare `log.Logger`; the rest of
the example pack's bitchat-adjacent dependency manifest reaches for
logrus for this instead, so that is what this tree uses. A Node's
log.Entry is also fanned out to any subscribed log-line listeners
(spec §6.4 "Event streams: ... log lines"), mirroring the teacher's
peerMonitor subscriber-list idiom used throughout facade.go.
*/

package node

import (
	"github.com/sirupsen/logrus"
)

type subscriberHook struct {
	node *Node
}

func (h *subscriberHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *subscriberHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return nil
	}
	h.node.publishLog(line)
	return nil
}

func newLogger(n *Node) *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(&subscriberHook{node: n})
	return l.WithField("peer_id", n.id)
}
