package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/go-quotations/gate"
)

type ownedRecord struct {
	OwnerID uint
}

func ownerPolicy() gate.Policy[uint] {
	return gate.PolicyFunc[uint](func(_ context.Context, userID uint, _ gate.Action, resource any) bool {
		r, ok := resource.(*ownedRecord)
		return ok && r.OwnerID == userID
	})
}

func staticResolver(profiles map[uint]gate.Profile) gate.ProfileResolver[uint] {
	return gate.ResolverFunc[uint](func(_ context.Context, uid uint) (gate.Profile, error) {
		return profiles[uid], nil
	})
}

func TestHybridGate_ProfileOnly(t *testing.T) {
	g := gate.NewHybridGate[uint](staticResolver(map[uint]gate.Profile{
		1: gate.NewStaticProfile("user",
			gate.NewPermission("quotation", gate.ActionCreate),
			gate.NewPermission("quotation", gate.ActionView),
		),
	}))
	ctx := context.Background()

	if !g.Can(ctx, 1, gate.ActionCreate, "quotation", nil) {
		t.Error("user with permission should be allowed")
	}
	if g.Can(ctx, 1, gate.ActionDelete, "quotation", nil) {
		t.Error("user without permission should be denied")
	}
	if g.Can(ctx, 2, gate.ActionView, "quotation", nil) {
		t.Error("user without profile should be denied")
	}
	if g.Can(ctx, 0, gate.ActionView, "quotation", nil) {
		t.Error("zero user should be denied")
	}
}

func TestHybridGate_ResourcePolicy(t *testing.T) {
	g := gate.NewHybridGate[uint](staticResolver(map[uint]gate.Profile{
		1: gate.NewStaticProfile("user", "quotation:*"),
		2: gate.NewStaticProfile("user", "quotation:*"),
	}))
	g.Register("quotation", ownerPolicy())
	ctx := context.Background()
	rec := &ownedRecord{OwnerID: 1}

	if err := g.Authorize(ctx, 1, gate.ActionUpdate, "quotation", rec); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	err := g.Authorize(ctx, 2, gate.ActionUpdate, "quotation", rec)
	if !errors.Is(err, gate.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	// no policy registered for this type: profile permission alone decides
	if g.Can(ctx, 2, gate.ActionView, "vendor", rec) {
		t.Fatal("missing vendor permission should deny")
	}
}

func TestPermission_Matches(t *testing.T) {
	tests := []struct {
		granted   gate.Permission
		requested gate.Permission
		want      bool
	}{
		{"*:*", "user:update", true},
		{"quotation:*", "quotation:delete", true},
		{"quotation:*", "vendor:list", false},
		{"quotation:view", "quotation:view", true},
		{"quotation:view", "quotation:update", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.granted)+"->"+string(tt.requested), func(t *testing.T) {
			if got := tt.granted.Matches(tt.requested); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePermission(t *testing.T) {
	p, ok := gate.ParsePermission(" stats:view ")
	if !ok || p != "stats:view" {
		t.Fatalf("got %q ok=%v", p, ok)
	}
	if _, ok := gate.ParsePermission("stats"); ok {
		t.Fatal("expected failure without separator")
	}
}

func TestCachedResolver(t *testing.T) {
	calls := 0
	role := "user"
	inner := gate.ResolverFunc[uint](func(_ context.Context, _ uint) (gate.Profile, error) {
		calls++
		return gate.NewStaticProfile(role), nil
	})
	cached := gate.NewCachedResolver[uint](inner, 5*time.Minute)
	ctx := context.Background()

	p, _ := cached.Resolve(ctx, 7)
	role = "admin"
	p2, _ := cached.Resolve(ctx, 7)
	if calls != 1 || p2.Name() != p.Name() {
		t.Fatalf("expected cached profile, calls=%d name=%s", calls, p2.Name())
	}

	cached.Invalidate(7)
	p3, _ := cached.Resolve(ctx, 7)
	if p3.Name() != "admin" {
		t.Errorf("expected refreshed profile after Invalidate, got %s", p3.Name())
	}

	role = "user"
	cached.InvalidateAll()
	p4, _ := cached.Resolve(ctx, 7)
	if p4.Name() != "user" || calls != 3 {
		t.Errorf("InvalidateAll did not refresh: name=%s calls=%d", p4.Name(), calls)
	}
}

func TestCachedResolver_DoesNotCacheErrors(t *testing.T) {
	fail := true
	inner := gate.ResolverFunc[uint](func(_ context.Context, _ uint) (gate.Profile, error) {
		if fail {
			return nil, errors.New("db down")
		}
		return gate.NewStaticProfile("user"), nil
	})
	cached := gate.NewCachedResolver[uint](inner, time.Minute)
	if _, err := cached.Resolve(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if p, err := cached.Resolve(context.Background(), 1); err != nil || p == nil {
		t.Fatalf("expected recovery, got %v %v", p, err)
	}
}
