package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		want    Action
		wantErr bool
	}{
		{
			name: "tool with args",
			raw:  map[string]interface{}{"type": "tool", "name": "math.calc", "args": map[string]interface{}{"expression": "3 * 4"}},
			want: Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "3 * 4"}},
		},
		{
			name: "tool without args",
			raw:  map[string]interface{}{"type": "tool", "name": "system.info"},
			want: Tool{Name: "system.info", Args: map[string]interface{}{}},
		},
		{
			name: "think",
			raw:  map[string]interface{}{"type": "think", "reasoning": "hmm"},
			want: Think{Reasoning: "hmm"},
		},
		{
			name: "finish",
			raw:  map[string]interface{}{"type": "finish", "output": "done"},
			want: Finish{Output: "done"},
		},
		{name: "tool without name", raw: map[string]interface{}{"type": "tool"}, wantErr: true},
		{name: "args not a mapping", raw: map[string]interface{}{"type": "tool", "name": "x", "args": []interface{}{1}}, wantErr: true},
		{name: "unknown type", raw: map[string]interface{}{"type": "dance"}, wantErr: true},
		{name: "missing type", raw: map[string]interface{}{"name": "x"}, wantErr: true},
		{name: "nil", raw: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalJSON_RoundTripsThroughUnmarshal(t *testing.T) {
	original := Tool{Name: "file.read", Args: map[string]interface{}{"path": "a.txt"}}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"tool"`)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestKind(t *testing.T) {
	assert.Equal(t, KindTool, Tool{}.Kind())
	assert.Equal(t, KindThink, Think{}.Kind())
	assert.Equal(t, KindFinish, Finish{}.Kind())
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(Tool{Name: "math.calc"}), "using math.calc")
	assert.Equal(t, "think action: thinking...", Describe(Think{}))
	assert.Equal(t, "finish action", Describe(Finish{Output: "x"}))
}
