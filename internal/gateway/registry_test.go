package gateway

import (
	"context"
	"strings"
	"testing"
)

func noop(_ context.Context, _ *Event) error { return nil }

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Handler{Kind: "bogus", Key: "x", Run: noop}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := r.Register(Handler{Kind: KindButton, Run: noop}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := r.Register(Handler{Kind: KindButton, Key: "x"}); err == nil {
		t.Error("expected error for nil run func")
	}
}

func TestRegister_DuplicateKey(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Handler{Kind: KindButton, Key: "ticket_claim_", Run: noop}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(Handler{Kind: KindButton, Key: "ticket_claim_", Run: noop})
	if err == nil {
		t.Fatal("expected duplicate-key error")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error = %q", err)
	}

	// Same key under a different kind is fine.
	if err := r.Register(Handler{Kind: KindSelect, Key: "ticket_claim_", Run: noop}); err != nil {
		t.Errorf("same key, different kind: %v", err)
	}
}

func TestResolve_ExactBeforePrefix(t *testing.T) {
	r := NewRegistry()
	var hit string
	mk := func(name string) HandlerFunc {
		return func(_ context.Context, _ *Event) error { hit = name; return nil }
	}
	r.MustRegister(
		Handler{Kind: KindButton, Key: "ticket_close_", Run: mk("prefix")},
		Handler{Kind: KindButton, Key: "ticket_close_ABCD1234", Run: mk("exact")},
	)

	h, ok := r.Resolve(KindButton, "ticket_close_ABCD1234")
	if !ok {
		t.Fatal("no handler resolved")
	}
	h.Run(context.Background(), nil)
	if hit != "exact" {
		t.Errorf("resolved %q, want exact match", hit)
	}
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	r := NewRegistry()
	var hit string
	mk := func(name string) HandlerFunc {
		return func(_ context.Context, _ *Event) error { hit = name; return nil }
	}
	r.MustRegister(
		Handler{Kind: KindButton, Key: "a_", Run: mk("a_")},
		Handler{Kind: KindButton, Key: "a_b", Run: mk("a_b")},
	)

	h, ok := r.Resolve(KindButton, "a_b_x")
	if !ok {
		t.Fatal("no handler resolved")
	}
	h.Run(context.Background(), nil)
	if hit != "a_b" {
		t.Errorf("resolved %q, want a_b (longest prefix)", hit)
	}
}

func TestResolve_NoPrefixForCommands(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		Handler{Kind: KindCommand, Key: "ticket", Run: noop},
		Handler{Kind: KindAutocomplete, Key: "reply", Run: noop},
	)
	if _, ok := r.Resolve(KindCommand, "ticket_extra"); ok {
		t.Error("commands must not prefix-match")
	}
	if _, ok := r.Resolve(KindAutocomplete, "reply_extra"); ok {
		t.Error("autocomplete must not prefix-match")
	}
	if _, ok := r.Resolve(KindCommand, "ticket"); !ok {
		t.Error("exact command match failed")
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Handler{Kind: KindButton, Key: "ticket_claim_", Run: noop})
	if _, ok := r.Resolve(KindButton, "other_button"); ok {
		t.Error("resolved a handler for an unrelated key")
	}
	if _, ok := r.Resolve(KindSelect, "ticket_claim_X"); ok {
		t.Error("resolved across kinds")
	}
}

func TestMustRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r := NewRegistry()
	r.MustRegister(
		Handler{Kind: KindButton, Key: "x", Run: noop},
		Handler{Kind: KindButton, Key: "x", Run: noop},
	)
}
