package ircx

import (
	"strings"
	"testing"
	"time"
)

// fakeClock lets scheduler tests control time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler() (*scheduler, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := New()
	b.now = clock.Now
	return newScheduler(b, nil), clock
}

func TestDelayGrowsPerConsecutiveSend(t *testing.T) {
	s, _ := newTestScheduler()
	// Untargeted sends: multiplier 10ms. Each send is scheduled at the
	// previous send's time plus consecutive*multiplier, so the delays
	// from a fixed instant accumulate.
	want := []time.Duration{
		0,
		10 * time.Millisecond,
		30 * time.Millisecond,
		60 * time.Millisecond,
	}
	for i, w := range want {
		if got := s.getAndUpdateDelay(""); got != w {
			t.Fatalf("send %d: delay = %v, want %v", i, got, w)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	s, _ := newTestScheduler()
	var prev time.Duration
	for i := 0; i < 50; i++ {
		d := s.getAndUpdateDelay("")
		if step := d - prev; step > s.bot.maxDelay {
			t.Fatalf("send %d: step %v exceeds cap %v", i, step, s.bot.maxDelay)
		}
		prev = d
	}
	// Far past the ramp the per-send step sits exactly at the cap.
	d1 := s.getAndUpdateDelay("")
	d2 := s.getAndUpdateDelay("")
	if d2-d1 != s.bot.maxDelay {
		t.Fatalf("steady-state step = %v, want %v", d2-d1, s.bot.maxDelay)
	}
}

func TestDelayResetsAfterQuiet(t *testing.T) {
	s, clock := newTestScheduler()
	for i := 0; i < 5; i++ {
		s.getAndUpdateDelay("")
	}
	// The quiet window is measured from the last scheduled send time,
	// which sits slightly in the future after a burst.
	clock.Advance(s.bot.consecutiveTimeout + time.Second)
	if got := s.getAndUpdateDelay(""); got != 0 {
		t.Fatalf("delay after quiet period = %v, want 0", got)
	}
	if got := s.getAndUpdateDelay(""); got != s.bot.delayMultiplier {
		t.Fatalf("delay after reset = %v, want %v", got, s.bot.delayMultiplier)
	}
}

func TestDelayTargetsIndependent(t *testing.T) {
	s, _ := newTestScheduler()
	for i := 0; i < 3; i++ {
		s.getAndUpdateDelay("#busy")
	}
	if got := s.getAndUpdateDelay("#idle"); got != 0 {
		t.Fatalf("fresh target should have no delay, got %v", got)
	}
	if got := s.getAndUpdateDelay(""); got != 0 {
		t.Fatalf("global class should be unaffected by targets, got %v", got)
	}
}

func TestDelayTargetedUsesPrivmsgTuning(t *testing.T) {
	s, _ := newTestScheduler()
	s.getAndUpdateDelay("#chan")
	if got := s.getAndUpdateDelay("#chan"); got != s.bot.privmsgDelayMultiplier {
		t.Fatalf("second targeted send delay = %v, want %v", got, s.bot.privmsgDelayMultiplier)
	}
}

func TestSchedulerKeepsPerTargetOrder(t *testing.T) {
	b, srv := startTestBot(t,
		DelayMessages(true),
		MessageDelay(time.Millisecond, 5*time.Millisecond, 50*time.Millisecond),
		DelayPrivmsgs(true),
		PrivmsgDelay(time.Millisecond, 5*time.Millisecond, 50*time.Millisecond),
	)
	for _, text := range []string{"a one", "a two", "a three"} {
		if _, err := b.Privmsg("#a", text); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.Privmsg("#b", "b one"); err != nil {
		t.Fatal(err)
	}

	var aLines []string
	for i := 0; i < 4; i++ {
		srv.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if !srv.sc.Scan() {
			t.Fatalf("missing line %d: %v", i, srv.sc.Err())
		}
		line := srv.sc.Text()
		if strings.HasPrefix(line, "PRIVMSG #a :") {
			aLines = append(aLines, strings.TrimPrefix(line, "PRIVMSG #a :"))
		}
	}
	want := []string{"a one", "a two", "a three"}
	if len(aLines) != 3 {
		t.Fatalf("got %d lines for #a, want 3", len(aLines))
	}
	for i := range want {
		if aLines[i] != want[i] {
			t.Fatalf("#a lines out of order: %q", aLines)
		}
	}
}

func TestPruneLastSent(t *testing.T) {
	s, clock := newTestScheduler()
	s.getAndUpdateDelay("#chan")
	s.oldTargets = append(s.oldTargets, targetExpiry{
		target: "#chan",
		at:     clock.Now().Add(s.bot.privmsgMaxDelay),
	})

	clock.Advance(s.bot.privmsgMaxDelay / 2)
	s.pruneLastSentLocked()
	if _, ok := s.lastSent["#chan"]; !ok {
		t.Fatal("state inside the grace period should survive")
	}

	clock.Advance(s.bot.privmsgMaxDelay)
	s.pruneLastSentLocked()
	if _, ok := s.lastSent["#chan"]; ok {
		t.Fatal("state past the grace period should be dropped")
	}
	if len(s.oldTargets) != 0 {
		t.Fatal("expired entry should leave the list")
	}
}

func TestDisconnectReleasesQueuedSends(t *testing.T) {
	b, srv := startTestBot(t,
		DelayMessages(true),
		MessageDelay(time.Hour, time.Hour, time.Hour),
	)
	// The first send goes out at once; the second sits behind an
	// hour-long delay when the connection drops.
	if _, err := b.SendCommand("PING", "one"); err != nil {
		t.Fatal(err)
	}
	queued, err := b.SendCommand("PING", "two")
	if err != nil {
		t.Fatal(err)
	}
	srv.expectLine("PING :one")
	srv.conn.Close()

	select {
	case <-queued:
	case <-time.After(5 * time.Second):
		t.Fatal("queued send not released on disconnect")
	}

	<-b.Done()
	late, err := b.SendCommand("PING", "three")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-late:
	case <-time.After(5 * time.Second):
		t.Fatal("send after disconnect not released")
	}
}
