package providers

import (
	"context"
	"testing"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/providers/flowable"
)

func TestNewRegistry_Types(t *testing.T) {
	got := NewRegistry().Types()
	if len(got) != 2 || got[0] != "EMBEDDED" || got[1] != "FLOWABLE" {
		t.Errorf("Types() = %v", got)
	}
}

func TestSelector_BuiltinBackends(t *testing.T) {
	cfg := engine.ConfigFunc(func(target interface{}) error {
		if c, ok := target.(*flowable.Config); ok {
			c.BaseURL = "http://localhost:8080/flowable-rest/service"
		}
		return nil
	})

	tests := []struct {
		engineType string
		wantType   string
	}{
		{"FLOWABLE", "FLOWABLE"},
		{"flowable", "FLOWABLE"},
		{"Flowable", "FLOWABLE"},
		{" embedded ", "EMBEDDED"},
	}

	for _, tt := range tests {
		t.Run(tt.engineType, func(t *testing.T) {
			sel, err := engine.NewSelector(context.Background(), NewRegistry(), tt.engineType, cfg)
			if err != nil {
				t.Fatalf("NewSelector: %v", err)
			}
			defer sel.Close()

			if sel.Type() != tt.wantType || sel.Engine().Type() != tt.wantType {
				t.Errorf("selected %s / %s, want %s", sel.Type(), sel.Engine().Type(), tt.wantType)
			}
		})
	}
}

func TestSelector_UnsupportedTypes(t *testing.T) {
	for _, engineType := range []string{"unsupported", "", "   "} {
		_, err := engine.NewSelector(context.Background(), NewRegistry(), engineType, engine.NoConfig)
		if !faults.IsKind(err, faults.KindConfiguration) {
			t.Errorf("%q: expected configuration fault, got %v", engineType, err)
		}
	}
}
