package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/procflow/procflow/pkg/faults"
)

// stubEngine is the minimal Engine used by selector tests.
type stubEngine struct {
	Engine
	kind   string
	closed bool
}

func (s *stubEngine) Type() string { return s.kind }

func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

func newTestRegistry(t *testing.T, built *int32) *Registry {
	t.Helper()

	r := NewRegistry()
	r.MustRegister("flowable", func(ctx context.Context, cfg BackendConfig) (Engine, error) {
		atomic.AddInt32(built, 1)
		return &stubEngine{kind: "FLOWABLE"}, nil
	})
	r.MustRegister("EMBEDDED", func(ctx context.Context, cfg BackendConfig) (Engine, error) {
		atomic.AddInt32(built, 1)
		return &stubEngine{kind: "EMBEDDED"}, nil
	})
	return r
}

func TestSelector_CaseInsensitive(t *testing.T) {
	for _, name := range []string{"FLOWABLE", "flowable", "Flowable", "  flowable  "} {
		t.Run(name, func(t *testing.T) {
			var built int32
			sel, err := NewSelector(context.Background(), newTestRegistry(t, &built), name, NoConfig)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sel.Engine().Type() != "FLOWABLE" {
				t.Errorf("expected FLOWABLE backend, got %s", sel.Engine().Type())
			}
			if sel.Type() != "FLOWABLE" {
				t.Errorf("expected normalised type FLOWABLE, got %s", sel.Type())
			}
			if built != 1 {
				t.Errorf("expected exactly one backend instantiated, got %d", built)
			}
		})
	}
}

func TestSelector_UnsupportedType(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"unsupported", "unsupported"},
		{"empty", ""},
		{"blank", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var built int32
			_, err := NewSelector(context.Background(), newTestRegistry(t, &built), tt.value, NoConfig)
			if err == nil {
				t.Fatal("expected error")
			}
			if !faults.IsKind(err, faults.KindConfiguration) {
				t.Errorf("expected configuration fault, got %v", err)
			}

			var f *faults.Fault
			if !errors.As(err, &f) {
				t.Fatal("expected *faults.Fault")
			}
			want := `unsupported engine type: "` + tt.value + `"`
			if f.Message != want {
				t.Errorf("expected message %q, got %q", want, f.Message)
			}
			if built != 0 {
				t.Errorf("no backend should be built, got %d", built)
			}
		})
	}
}

func TestSelector_FactoryError(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("broken", func(ctx context.Context, cfg BackendConfig) (Engine, error) {
		return nil, errors.New("cannot connect")
	})

	_, err := NewSelector(context.Background(), r, "broken", NoConfig)
	if err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Fatalf("expected factory error to surface, got %v", err)
	}
}

func TestSelector_PassesBackendConfig(t *testing.T) {
	type settings struct{ URL string }

	var got settings
	r := NewRegistry()
	r.MustRegister("custom", func(ctx context.Context, cfg BackendConfig) (Engine, error) {
		if err := cfg.Decode(&got); err != nil {
			return nil, err
		}
		return &stubEngine{kind: "CUSTOM"}, nil
	})

	cfg := ConfigFunc(func(target interface{}) error {
		target.(*settings).URL = "http://engine:8080"
		return nil
	})
	if _, err := NewSelector(context.Background(), r, "custom", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL != "http://engine:8080" {
		t.Errorf("backend settings not decoded, got %+v", got)
	}

	if _, err := NewSelector(context.Background(), r, "custom", nil); err != nil {
		t.Errorf("nil config must fall back to NoConfig: %v", err)
	}
}

func TestSelector_Close(t *testing.T) {
	var built int32
	sel, err := NewSelector(context.Background(), newTestRegistry(t, &built), "embedded", NoConfig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sel.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !sel.Engine().(*stubEngine).closed {
		t.Error("expected backend to be closed")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	factory := func(ctx context.Context, cfg BackendConfig) (Engine, error) { return &stubEngine{}, nil }

	if err := r.Register("camunda", factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("CAMUNDA", factory); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("  ", factory); err == nil {
		t.Error("expected blank engine type to fail")
	}
	if err := r.Register("other", nil); err == nil {
		t.Error("expected nil factory to fail")
	}

	if got := r.Types(); len(got) != 1 || got[0] != "CAMUNDA" {
		t.Errorf("unexpected types %v", got)
	}
}
