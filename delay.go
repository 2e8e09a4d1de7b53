package ircx

import (
	"container/heap"
	"sync"
	"time"
)

type splitOptions struct {
	nobreak bool
}

// delayedMessage is one outbound unit awaiting transmission. sent is
// closed once the message (all fragments, when splitting) is on the
// wire, or when the connection ends before the message could be sent.
type delayedMessage struct {
	msg    Message
	target string // folded original target; "" for untargeted traffic
	sent   chan struct{}
	split  *splitOptions
}

type sentState struct {
	last        time.Time
	consecutive int
}

type heapEntry struct {
	at     time.Time
	seq    uint64
	target string // current stage key; "" is the global stage
	dm     *delayedMessage
}

type sendHeap []heapEntry

func (h sendHeap) Len() int { return len(h) }
func (h sendHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].seq < h[j].seq
}
func (h sendHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sendHeap) Push(x any)   { *h = append(*h, x.(heapEntry)) }
func (h *sendHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

type targetExpiry struct {
	target string
	at     time.Time
}

// scheduler spaces outbound messages so consecutive sends to one target
// never trip server-side flood protection, without stalling other
// targets. Messages to the same target keep their enqueue order; targeted
// and untargeted traffic are scheduled independently.
type scheduler struct {
	bot   *Bot
	dying <-chan struct{}

	mu         sync.Mutex
	dead       bool // set by run on exit; no further transmissions
	queues     map[string][]*delayedMessage
	newTargets []string
	wake       chan struct{} // 1-buffered, coalesced

	heap sendHeap
	seq  uint64

	lastSent map[string]sentState
	// oldTargets orders drained targets by the time their delay state
	// may be garbage collected, oldest first.
	oldTargets []targetExpiry
}

func newScheduler(b *Bot, dying <-chan struct{}) *scheduler {
	return &scheduler{
		bot:      b,
		dying:    dying,
		queues:   make(map[string][]*delayedMessage),
		wake:     make(chan struct{}, 1),
		lastSent: make(map[string]sentState),
	}
}

// getAndUpdateDelay computes how long the next send to target must wait
// and advances the target's consecutive-send state. The delay grows by
// one multiplier per consecutive send up to the cap; the streak resets
// once the target has been quiet for the consecutive timeout.
func (s *scheduler) getAndUpdateDelay(target string) time.Duration {
	b := s.bot
	multiplier, maxDelay, window := b.delayMultiplier, b.maxDelay, b.consecutiveTimeout
	if target != "" {
		multiplier, maxDelay, window = b.privmsgDelayMultiplier, b.privmsgMaxDelay, b.privmsgConsecutiveTimeout
	}

	now := b.now()
	last := now
	consecutive := 0
	if st, ok := s.lastSent[target]; ok {
		last = st.last
		consecutive = st.consecutive
		if now.Sub(st.last) >= window {
			consecutive = 0
		}
	}

	delayFromLast := time.Duration(consecutive) * multiplier
	if delayFromLast > maxDelay {
		delayFromLast = maxDelay
	}
	msgTime := last.Add(delayFromLast)
	if msgTime.Before(now) {
		msgTime = now
	}
	s.lastSent[target] = sentState{last: msgTime, consecutive: consecutive + 1}
	return msgTime.Sub(now)
}

// queueMessage hands an outbound message to the pacing scheduler. target
// is "" for non-PRIVMSG/NOTICE traffic. The returned channel closes once
// the message has actually been written, or once the connection ends;
// when the relevant delay class is disabled the write happens
// synchronously.
func (b *Bot) queueMessage(target string, m Message, split *splitOptions) <-chan struct{} {
	sent := make(chan struct{})
	if target != "" && !b.delayPrivmsgs {
		target = ""
	}
	if target == "" && !b.delayMessages {
		msgs := []Message{m}
		if split != nil {
			msgs = b.splitMessage(m, split.nobreak)
		}
		for _, msg := range msgs {
			b.sendNow(msg)
		}
		close(sent)
		return sent
	}

	b.mu.Lock()
	s := b.sched
	b.mu.Unlock()
	if s == nil {
		b.log.Warn().Str("command", m.Command).Msg("dropping message queued while disconnected")
		close(sent)
		return sent
	}

	key := Fold(target)
	dm := &delayedMessage{msg: m, target: key, sent: sent, split: split}
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		b.log.Warn().Str("command", m.Command).Msg("dropping message queued while disconnected")
		close(sent)
		return sent
	}
	if _, ok := s.queues[key]; !ok {
		s.queues[key] = nil
		s.removeOldTargetLocked(key)
		s.newTargets = append(s.newTargets, key)
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	s.queues[key] = append(s.queues[key], dm)
	s.mu.Unlock()
	return sent
}

// run is the scheduler loop: sleep until the earliest scheduled send is
// due or a newly busy target needs scheduling, then transmit.
func (s *scheduler) run() error {
	defer s.shutdown()
	for {
		s.mu.Lock()
		for _, t := range s.newTargets {
			s.pushFromQueueLocked(t, false)
		}
		s.newTargets = s.newTargets[:0]
		if len(s.heap) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.dying:
				return nil
			}
		}
		delay := s.heap[0].at.Sub(s.bot.now())
		s.mu.Unlock()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-s.wake:
				timer.Stop()
				continue
			case <-s.dying:
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		s.transmitDue()
	}
}

// shutdown releases every undelivered message's sent channel so callers
// blocked on one are not stranded when the connection ends. A message is
// in the heap or in a queue, never both.
func (s *scheduler) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
	for _, e := range s.heap {
		close(e.dm.sent)
	}
	s.heap = nil
	for _, q := range s.queues {
		for _, dm := range q {
			close(dm.sent)
		}
	}
	s.queues = nil
}

// transmitDue handles the entry at the top of the heap.
func (s *scheduler) transmitDue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return
	}
	dm := s.heap[0].dm

	if s.heap[0].target != "" {
		// The per-target stage is done; route through the global
		// stage so targeted traffic also honors global pacing.
		s.replaceTopLocked("", dm)
		return
	}

	if dm.split != nil {
		first, rest := s.bot.splitMessageOnce(dm.msg, dm.split.nobreak)
		if rest != nil {
			// One fragment per tick; the remainder goes back ahead
			// of its target's queue so other targets interleave.
			dm.msg = *rest
			s.replaceTopLocked(dm.target, dm)
			s.bot.sendNow(first)
			return
		}
		dm.msg = first
	}

	s.bot.sendNow(dm.msg)
	close(dm.sent)

	key := dm.target
	if q := s.queues[key]; len(q) > 0 {
		s.pushFromQueueLocked(key, true)
		return
	}
	heap.Pop(&s.heap)
	delete(s.queues, key)
	if key != "" {
		s.pruneLastSentLocked()
		s.oldTargets = append(s.oldTargets, targetExpiry{
			target: key,
			at:     s.bot.now().Add(s.bot.privmsgMaxDelay),
		})
	}
}

func (s *scheduler) pushFromQueueLocked(key string, replace bool) {
	q := s.queues[key]
	if len(q) == 0 {
		return
	}
	s.queues[key] = q[1:]
	if replace {
		s.replaceTopLocked(key, q[0])
		return
	}
	s.seq++
	at := s.bot.now().Add(s.getAndUpdateDelay(key))
	heap.Push(&s.heap, heapEntry{at: at, seq: s.seq, target: key, dm: q[0]})
}

func (s *scheduler) replaceTopLocked(key string, dm *delayedMessage) {
	s.seq++
	at := s.bot.now().Add(s.getAndUpdateDelay(key))
	s.heap[0] = heapEntry{at: at, seq: s.seq, target: key, dm: dm}
	heap.Fix(&s.heap, 0)
}

// pruneLastSentLocked drops delay state for targets whose grace period
// has passed. oldTargets is expiry-ordered, so the scan stops at the
// first entry still in grace.
func (s *scheduler) pruneLastSentLocked() {
	now := s.bot.now()
	for len(s.oldTargets) > 0 && now.After(s.oldTargets[0].at) {
		delete(s.lastSent, s.oldTargets[0].target)
		s.oldTargets = s.oldTargets[1:]
	}
}

func (s *scheduler) removeOldTargetLocked(key string) {
	for i, e := range s.oldTargets {
		if e.target == key {
			s.oldTargets = append(s.oldTargets[:i], s.oldTargets[i+1:]...)
			return
		}
	}
}
