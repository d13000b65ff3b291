package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{`"10s"`, 10 * time.Second, false},
		{`"500ms"`, 500 * time.Millisecond, false},
		{`"1m"`, time.Minute, false},
		{`"not-a-duration"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalJSON(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.want {
				t.Errorf("UnmarshalJSON(%s) = %s, want %s", tt.input, d.Duration, tt.want)
			}
		})
	}
}

func TestExecutionResponse_OmitsEmptyError(t *testing.T) {
	b, err := json.Marshal(ExecutionResponse{ID: "e1", Output: "42\n", Duration: Duration{Duration: 20 * time.Millisecond}})
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if strings.Contains(got, `"error"`) {
		t.Errorf("successful response must not carry an error field: %s", got)
	}
	if !strings.Contains(got, `"duration":"20ms"`) {
		t.Errorf("duration not rendered as a string: %s", got)
	}
}
