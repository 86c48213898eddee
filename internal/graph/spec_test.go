package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name: "valid spec",
			spec: Spec{
				Name: "build",
				Units: []UnitSpec{
					{Name: "compile", Action: "go build"},
					{Name: "test", Action: "go test", Dependencies: []string{"compile"}},
				},
			},
		},
		{
			name:    "missing name",
			spec:    Spec{Units: []UnitSpec{{Action: "x"}}},
			wantErr: "name is required",
		},
		{
			name:    "missing action",
			spec:    Spec{Name: "build", Units: []UnitSpec{{Name: "a"}}},
			wantErr: "action is required",
		},
		{
			name: "duplicate unit name",
			spec: Spec{
				Name:  "build",
				Units: []UnitSpec{{Name: "a", Action: "x"}, {Name: "a", Action: "y"}},
			},
			wantErr: "duplicate unit name",
		},
		{
			name: "self dependency",
			spec: Spec{
				Name:  "build",
				Units: []UnitSpec{{Name: "a", Action: "x", Dependencies: []string{"a"}}},
			},
			wantErr: "depends on itself",
		},
		{
			name: "duplicate dependency",
			spec: Spec{
				Name: "build",
				Units: []UnitSpec{
					{Name: "a", Action: "x"},
					{Name: "b", Action: "y", Dependencies: []string{"a", "a"}},
				},
			},
			wantErr: "duplicate dependency",
		},
		{
			name: "dangling dependency is allowed here",
			spec: Spec{
				Name:  "build",
				Units: []UnitSpec{{Name: "a", Action: "x", Dependencies: []string{"ghost"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnitSpec_EffectiveName(t *testing.T) {
	assert.Equal(t, "compile", UnitSpec{Name: "compile", Action: "go build"}.EffectiveName())
	assert.Equal(t, "go build", UnitSpec{Action: "go build"}.EffectiveName())
}
