package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFlexBool_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr bool
	}{
		{name: "bool", input: "v: true", want: true},
		{name: "string", input: `v: "false"`, want: false},
		{name: "int", input: "v: 1", want: true},
		{name: "zero float", input: "v: 0.0", want: false},
		{name: "garbage string", input: `v: "maybe"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				V FlexBool `yaml:"v"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bool(out.V))
		})
	}
}
