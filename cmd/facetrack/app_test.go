package main

import (
	"testing"
)

func TestCascadeModels(t *testing.T) {
	tests := []struct {
		name      string
		opts      options
		wantFull  string
		wantLocal string
	}{
		{
			name:      "defaults",
			wantFull:  "models/haarcascade_frontalface_alt.xml",
			wantLocal: "models/lbpcascade_frontalface.xml",
		},
		{
			name:      "custom model serves both roles",
			opts:      options{Model: "faces.xml"},
			wantFull:  "faces.xml",
			wantLocal: "faces.xml",
		},
		{
			name:      "custom local model",
			opts:      options{LocalModel: "local.xml"},
			wantFull:  "models/haarcascade_frontalface_alt.xml",
			wantLocal: "local.xml",
		},
		{
			name:      "both given",
			opts:      options{Model: "full.xml", LocalModel: "local.xml"},
			wantFull:  "full.xml",
			wantLocal: "local.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, local := cascadeModels(tt.opts)
			if full != tt.wantFull || local != tt.wantLocal {
				t.Errorf("cascadeModels() = (%q, %q), want (%q, %q)", full, local, tt.wantFull, tt.wantLocal)
			}
		})
	}
}

func TestNewDetectors_Unknown(t *testing.T) {
	if _, _, err := newDetectors(options{Detector: "sift"}); err == nil {
		t.Error("Expected error for unknown detector")
	}
}
