package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/stockgate/internal/directory"
	"github.com/hitoshi/stockgate/internal/model"
)

type mockUserFinder struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	calls         int
}

func (m *mockUserFinder) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.calls++
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

type recordingMetrics struct {
	enrich []string
	faults []string
}

func (r *recordingMetrics) RecordSignIn(string)               {}
func (r *recordingMetrics) RecordProvisioned(bool)            {}
func (r *recordingMetrics) RecordDirectoryFault(stage string) { r.faults = append(r.faults, stage) }
func (r *recordingMetrics) RecordEnrichment(outcome string)   { r.enrich = append(r.enrich, outcome) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEnrich_AdminRecord_CopiesIDAndRole(t *testing.T) {
	finder := &mockUserFinder{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, Role: model.RoleAdmin}, nil
		},
	}
	rec := &recordingMetrics{}
	e := NewEnricher(finder, quietLogger(), rec)
	base := &model.Session{Email: "a@x.com", Name: "Alice"}

	got := e.Enrich(context.Background(), base)

	if got.ID != "user-1" || got.Role != model.RoleAdmin {
		t.Errorf("enriched session = %+v, want ID=user-1 Role=admin", got)
	}
	if got.Name != "Alice" || got.Email != "a@x.com" {
		t.Errorf("base fields must be preserved, got %+v", got)
	}
	if !got.IsAdmin() {
		t.Error("expected IsAdmin() = true")
	}
	if base.ID != "" || base.Role != "" {
		t.Errorf("base session must not be mutated, got %+v", base)
	}
	if len(rec.enrich) != 1 || rec.enrich[0] != "hit" {
		t.Errorf("enrichment metrics = %v, want [hit]", rec.enrich)
	}
}

func TestEnrich_NoRecord_ReturnsBaseUnchanged(t *testing.T) {
	e := NewEnricher(&mockUserFinder{}, quietLogger(), nil)
	base := &model.Session{Email: "gone@x.com"}

	got := e.Enrich(context.Background(), base)

	if got != base {
		t.Error("expected base session to be returned as-is")
	}
	if got.ID != "" || got.Role != "" {
		t.Errorf("no fields should be added, got %+v", got)
	}
	if got.EffectiveRole() != model.RoleUser {
		t.Errorf("EffectiveRole() = %q, want %q", got.EffectiveRole(), model.RoleUser)
	}
	if got.IsAdmin() {
		t.Error("missing role must never be treated as admin")
	}
}

func TestEnrich_DirectoryFault_ReturnsBaseAndReports(t *testing.T) {
	finder := &mockUserFinder{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, &directory.FaultError{Op: "find", Err: errors.New("connection refused")}
		},
	}
	rec := &recordingMetrics{}
	e := NewEnricher(finder, quietLogger(), rec)
	base := &model.Session{Email: "a@x.com"}

	got := e.Enrich(context.Background(), base)

	if got != base || got.Role != "" || got.ID != "" {
		t.Errorf("expected unchanged base session, got %+v", got)
	}
	if len(rec.faults) != 1 || rec.faults[0] != "enrich" {
		t.Errorf("fault metrics = %v, want [enrich]", rec.faults)
	}
}

func TestEnrich_Idempotent(t *testing.T) {
	finder := &mockUserFinder{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Role: model.RoleUser}, nil
		},
	}
	e := NewEnricher(finder, quietLogger(), nil)
	base := &model.Session{Email: "a@x.com"}

	first := e.Enrich(context.Background(), base)
	second := e.Enrich(context.Background(), first)

	if *first != *second {
		t.Errorf("enrich is not idempotent: %+v vs %+v", first, second)
	}
}

func TestEnrich_RoleChangeBetweenReads(t *testing.T) {
	role := model.RoleUser
	finder := &mockUserFinder{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Role: role}, nil
		},
	}
	e := NewEnricher(finder, quietLogger(), nil)
	base := &model.Session{Email: "a@x.com"}

	if got := e.Enrich(context.Background(), base); got.Role != model.RoleUser {
		t.Fatalf("Role = %q, want user", got.Role)
	}
	role = model.RoleAdmin
	if got := e.Enrich(context.Background(), base); got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin after external promotion", got.Role)
	}
}

func TestEnrich_NilOrEmptySession_Skips(t *testing.T) {
	finder := &mockUserFinder{}
	e := NewEnricher(finder, quietLogger(), nil)

	if got := e.Enrich(context.Background(), nil); got != nil {
		t.Errorf("Enrich(nil) = %+v, want nil", got)
	}
	empty := &model.Session{}
	if got := e.Enrich(context.Background(), empty); got != empty {
		t.Error("expected empty session to be returned as-is")
	}
	if finder.calls != 0 {
		t.Errorf("directory calls = %d, want 0", finder.calls)
	}
}
