package pool

import "testing"

func TestPoolConservation(t *testing.T) {
	t.Parallel()

	p := New(Config{EnvelopeCap: 4})

	var rented []*Envelope
	for i := 0; i < 4; i++ {
		rented = append(rented, p.Acquire())
	}

	stats := p.Stats()
	if stats.RentCount-stats.ReturnCount != uint64(stats.InUse) {
		t.Fatalf("rent_count - return_count (%d) != in_use (%d)", stats.RentCount-stats.ReturnCount, stats.InUse)
	}
	if stats.InUse != 4 {
		t.Fatalf("in_use = %d, want 4", stats.InUse)
	}

	for _, e := range rented {
		p.Release(e)
	}

	stats = p.Stats()
	if stats.RentCount-stats.ReturnCount != uint64(stats.InUse) {
		t.Fatalf("rent_count - return_count (%d) != in_use (%d) after release", stats.RentCount-stats.ReturnCount, stats.InUse)
	}
	if stats.InUse != 0 {
		t.Fatalf("in_use = %d, want 0 after release", stats.InUse)
	}
}

func TestPoolLIFOReuse(t *testing.T) {
	t.Parallel()

	p := New(Config{EnvelopeCap: 4})

	a := p.Acquire()
	a.MsgType = "D"
	p.Release(a)

	b := p.Acquire()
	if b != a {
		t.Fatal("expected LIFO reuse to hand back the just-released envelope")
	}
	if b.MsgType != "" {
		t.Errorf("reused envelope MsgType = %q, want empty (reset on release)", b.MsgType)
	}
}

func TestPoolExhaustionIncrementsLeakedCounter(t *testing.T) {
	t.Parallel()

	p := New(Config{EnvelopeCap: 2})

	// Exhaust the cap without releasing.
	_ = p.Acquire()
	_ = p.Acquire()
	leakedOne := p.Acquire() // past the cap: unpooled

	if p.Stats().Leaked == 0 {
		t.Fatal("expected leaked counter to be incremented after exceeding cap")
	}

	// Releasing the non-pooled envelope returns it to the free-list, so the
	// pool serves pooled acquires again.
	p.Release(leakedOne)

	fresh := p.Acquire()
	p.Release(fresh)
	reused := p.Acquire()
	if reused != fresh {
		t.Fatal("expected pool to resume LIFO reuse after a release")
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	t.Parallel()

	p := New(Config{EnvelopeCap: 4})
	e := p.Acquire()
	p.Release(e)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected double release to panic")
		}
	}()
	p.Release(e)
}

func TestReusedEnvelopeReleasesCleanlyTwice(t *testing.T) {
	t.Parallel()

	p := New(Config{EnvelopeCap: 4})

	e1 := p.Acquire()
	p.Release(e1)

	e2 := p.Acquire()
	if e2 != e1 {
		t.Fatal("expected LIFO reuse to hand back the same envelope")
	}
	p.Release(e2)

	e3 := p.Acquire()
	p.Release(e3)
}

func TestAcquireWithBufferZeroedOnRelease(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxMessageSize: 16, EnvelopeCap: 4, BufferCap: 4})

	e := p.AcquireWithBuffer(8)
	copy(e.Buffer, []byte("dirtydat"))
	p.Release(e)

	e2 := p.AcquireWithBuffer(8)
	for i, b := range e2.Buffer {
		if b != 0 {
			t.Fatalf("buffer byte %d = %d, want 0 (zeroed on release)", i, b)
		}
	}
}

func TestLargeBufferRoundTrip(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxMessageSize: 16, LargeBufferMultiple: 4, LargeBufferCap: 2})
	buf := p.AcquireLargeBuffer(32)
	if len(buf) != 32 {
		t.Fatalf("len(buf) = %d, want 32", len(buf))
	}
	copy(buf, []byte("payload"))
	p.ReleaseLargeBuffer(buf)

	buf2 := p.AcquireLargeBuffer(32)
	for i, b := range buf2 {
		if b != 0 {
			t.Fatalf("large buffer byte %d = %d, want 0 (zeroed on release)", i, b)
		}
	}
}
