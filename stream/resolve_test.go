package stream

import "testing"

func TestResolveHFURLBasic(t *testing.T) {
	target, err := ResolveHFURL("hf://bigcode/the-stack")
	if err != nil {
		t.Fatalf("ResolveHFURL: %v", err)
	}
	want := Target{Org: "bigcode", Dataset: "the-stack", Config: "default", Split: "train"}
	if target != want {
		t.Errorf("ResolveHFURL() = %+v, want %+v", target, want)
	}
}

func TestResolveHFURLWithSplit(t *testing.T) {
	target, err := ResolveHFURL("hf://bigcode/the-stack/test")
	if err != nil {
		t.Fatalf("ResolveHFURL: %v", err)
	}
	want := Target{Org: "bigcode", Dataset: "the-stack", Config: "default", Split: "test"}
	if target != want {
		t.Errorf("ResolveHFURL() = %+v, want %+v", target, want)
	}
}

func TestResolveHFURLWithConfigAndSplit(t *testing.T) {
	target, err := ResolveHFURL("hf://bigcode/the-stack/python/validation")
	if err != nil {
		t.Fatalf("ResolveHFURL: %v", err)
	}
	want := Target{Org: "bigcode", Dataset: "the-stack", Config: "python", Split: "validation"}
	if target != want {
		t.Errorf("ResolveHFURL() = %+v, want %+v", target, want)
	}
}

func TestResolveHFURLConfigAndSplitAbsorbsExtraSegments(t *testing.T) {
	target, err := ResolveHFURL("hf://org/dataset/config/split/extra/nested")
	if err != nil {
		t.Fatalf("ResolveHFURL: %v", err)
	}
	if target.Config != "config" || target.Split != "split/extra/nested" {
		t.Errorf("ResolveHFURL() = %+v, want Config=config Split=split/extra/nested", target)
	}
}

func TestResolveHFURLInvalid(t *testing.T) {
	tests := []string{
		"https://example.com/dataset",
		"hf://onlyorg",
		"hf://",
		"not-a-uri",
	}
	for _, uri := range tests {
		if _, err := ResolveHFURL(uri); err == nil {
			t.Errorf("ResolveHFURL(%q) should have errored", uri)
		}
	}
}

func TestTargetDisplayName(t *testing.T) {
	target := Target{Org: "bigcode", Dataset: "the-stack", Config: "python", Split: "train"}
	want := "bigcode/the-stack [python:train]"
	if got := target.DisplayName(); got != want {
		t.Errorf("DisplayName() = %q, want %q", got, want)
	}
}

func TestTargetAPIURL(t *testing.T) {
	target := Target{Org: "bigcode", Dataset: "the-stack"}
	want := "https://datasets-server.huggingface.co/parquet?dataset=bigcode/the-stack"
	if got := target.APIURL(); got != want {
		t.Errorf("APIURL() = %q, want %q", got, want)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{500, "500 B"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
