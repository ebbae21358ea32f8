package tier

import (
	"testing"
	"time"
)

func TestPolicy_IsFresh_Monotonic(t *testing.T) {
	p := DefaultPolicy()
	e := Entry{InsertedAt: time.Unix(1000, 0), Tier: T1}

	t1 := time.Unix(1005, 0) // age 5s, within 10s ttl
	t2 := time.Unix(1002, 0) // earlier, age 2s

	if !p.IsFresh(e, t1) {
		t.Fatalf("expected fresh at t1")
	}
	if !p.IsFresh(e, t2) {
		t.Fatalf("freshness must hold at an earlier time if it held at a later one")
	}
}

func TestPolicy_TTLWithinMaxStale(t *testing.T) {
	p := DefaultPolicy()
	for label, cfg := range p.Configs {
		if cfg.TTL > p.MaxStaleAge {
			t.Fatalf("tier %s: ttl %v exceeds maxStaleAge %v", label, cfg.TTL, p.MaxStaleAge)
		}
	}
}

func TestPolicy_FreshImpliesServableStale(t *testing.T) {
	p := DefaultPolicy()
	e := Entry{InsertedAt: time.Unix(1000, 0), Tier: T2}
	now := time.Unix(1010, 0)

	if !p.IsFresh(e, now) {
		t.Fatalf("expected fresh")
	}
	if !p.IsServableStale(e, now) {
		t.Fatalf("fresh entries must always be servable-stale")
	}
}

func TestPolicy_TooStale(t *testing.T) {
	p := DefaultPolicy()
	e := Entry{InsertedAt: time.Unix(0, 0), Tier: T1}
	now := time.Unix(4000, 0)

	if p.IsFresh(e, now) {
		t.Fatalf("expected not fresh")
	}
	if p.IsServableStale(e, now) {
		t.Fatalf("expected too stale to be servable")
	}
	if !p.IsTooStale(e, now) {
		t.Fatalf("expected IsTooStale true")
	}
}

func TestRegistry_AtMostOneTier(t *testing.T) {
	r := NewRegistry()
	pair := "ethereum:usdc:weth"

	r.Assign(pair, T3)
	r.Assign(pair, T1)

	if got := r.TierOf(pair); got != T1 {
		t.Fatalf("TierOf = %s, want T1", got)
	}
	for _, m := range r.MembersOf(T3) {
		if m == pair {
			t.Fatalf("pair still present in T3 members after reassignment")
		}
	}
	found := false
	for _, m := range r.MembersOf(T1) {
		if m == pair {
			found = true
		}
	}
	if !found {
		t.Fatalf("pair missing from T1 members")
	}
}

func TestRegistry_DefaultTierForUnassigned(t *testing.T) {
	r := NewRegistry()
	if got := r.TierOf("unknown:pair:key"); got != Default {
		t.Fatalf("TierOf unassigned = %s, want %s", got, Default)
	}
}

func TestPolicy_RefreshableTiers(t *testing.T) {
	p := DefaultPolicy()
	got := p.RefreshableTiers()
	want := []Label{T1, T2, T3}

	if len(got) != len(want) {
		t.Fatalf("RefreshableTiers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RefreshableTiers[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
