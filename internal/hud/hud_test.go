package hud

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Brownie44l1/blight-api/internal/pipeline"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		d     pipeline.Decision
		label string
		conf  string
	}{
		{"no leaf", pipeline.Decision{Kind: pipeline.NoLeaf, Index: -1}, "NO LEAF DETECTED", ""},
		{"low", pipeline.Decision{Kind: pipeline.LowConfidence, Label: "healthy", Confidence: 0.4}, "LOW CONFIDENCE", "0.40"},
		{"disease", pipeline.Decision{Kind: pipeline.Classified, Label: "late_blight", Confidence: 0.875}, "LATE_BLIGHT", "87.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, _ := Status(tt.d)
			if label != tt.label || conf != tt.conf {
				t.Fatalf("Status = %q, %q; want %q, %q", label, conf, tt.label, tt.conf)
			}
		})
	}

	if _, _, c := Status(pipeline.Decision{Kind: pipeline.Classified, Label: "healthy", Confidence: 1}); c != White {
		t.Fatalf("healthy color = %v, want white", c)
	}
	if _, _, c := Status(pipeline.Decision{Kind: pipeline.Classified, Label: "early_blight", Confidence: 1}); c != Green {
		t.Fatalf("disease color = %v, want green", c)
	}
}

func TestLines(t *testing.T) {
	got := Lines(pipeline.Decision{Kind: pipeline.NoLeaf, Index: -1}, 0.0123, 14.56)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 without confidence row", len(got))
	}
	if got[1].Text != "Green ratio: 0.012" || got[2].Text != "FPS: 14.6" {
		t.Fatalf("lines = %+v", got)
	}

	got = Lines(pipeline.Decision{Kind: pipeline.Classified, Label: "healthy", Confidence: 0.9}, 0.5, 30)
	if len(got) != 4 || got[1].Text != "Confidence: 90.0%" {
		t.Fatalf("lines = %+v", got)
	}
}

func TestErrorLinesKeepFPS(t *testing.T) {
	got := ErrorLines(errors.New("convert frame: bad mat"), 12.34)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "ERROR: convert frame: bad mat" || got[0].Color != Red {
		t.Fatalf("error line = %+v", got[0])
	}
	if got[1].Text != "FPS: 12.3" {
		t.Fatalf("fps line = %+v", got[1])
	}
}

func TestFPSMeter(t *testing.T) {
	var m FPSMeter
	start := time.Unix(1000, 0)
	if got := m.Tick(start); got != 0 {
		t.Fatalf("first tick = %v, want 0", got)
	}
	got := m.Tick(start.Add(100 * time.Millisecond))
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("second tick = %v, want 1", got)
	}
	got = m.Tick(start.Add(200 * time.Millisecond))
	if math.Abs(got-1.9) > 1e-9 {
		t.Fatalf("third tick = %v, want 1.9", got)
	}
}
