package cbt

import "testing"

func TestDetectDistressWithDistortion(t *testing.T) {
	res := Detect("I'm so anxious, I'm a failure and this always happens to me")
	if !res.Indicated {
		t.Fatal("expected CBT indication")
	}
	if len(res.Indicators) < 2 {
		t.Fatalf("expected labeling and overgeneralization, got %v", res.Indicators)
	}
}

func TestDistortionWithoutDistressIsGatedOff(t *testing.T) {
	// distortion phrasing in a calm message must not trigger clinical framing
	res := Detect("my code never works on the first try, classic")
	if res.Indicated {
		t.Fatalf("casual message should short-circuit, got %v", res.Indicators)
	}
}

func TestDistressWithoutDistortion(t *testing.T) {
	res := Detect("I'm feeling really stressed about the move")
	if res.Indicated {
		t.Fatalf("distress alone should not indicate CBT, got %v", res.Indicators)
	}
}

func TestDetectEmptyMessage(t *testing.T) {
	if res := Detect(""); res.Indicated {
		t.Fatal("empty message should not indicate CBT")
	}
}

func TestDetectCatastrophizing(t *testing.T) {
	res := Detect("I'm panicking, this is a disaster and I'll never recover")
	if !res.Indicated {
		t.Fatal("expected CBT indication")
	}
	found := false
	for _, ind := range res.Indicators {
		if ind == Catastrophizing {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected catastrophizing indicator, got %v", res.Indicators)
	}
}
