package main

import (
	"reflect"
	"testing"
)

func TestExtractConfigFlag(t *testing.T) {
	tests := []struct {
		in       []string
		wantPath string
		wantRest []string
	}{
		{[]string{"agent"}, "", []string{"agent"}},
		{[]string{"--config", "/tmp/s.toml", "status"}, "/tmp/s.toml", []string{"status"}},
		{[]string{"set-rate", "global", "10", "10", "--config=/tmp/s.toml"}, "/tmp/s.toml", []string{"set-rate", "global", "10", "10"}},
	}
	for _, tt := range tests {
		path, rest := extractConfigFlag(tt.in)
		if path != tt.wantPath {
			t.Errorf("path: got %q, want %q", path, tt.wantPath)
		}
		if !reflect.DeepEqual(rest, tt.wantRest) {
			t.Errorf("rest: got %v, want %v", rest, tt.wantRest)
		}
	}
}
