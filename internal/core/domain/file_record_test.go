package domain

import (
	"testing"
	"time"
)

func TestCategoryForMimeType(t *testing.T) {
	cases := []struct {
		mimeType string
		want     Category
	}{
		{"image/png", CategoryImage},
		{"audio/mpeg", CategoryAudio},
		{"video/mp4", CategoryVideo},
		{"application/pdf", CategoryPDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument},
		{"text/plain", CategoryDocument},
		{"image/svg+xml", CategoryImage},
		{"application/octet-stream", CategoryOther},
		{"", CategoryOther},
	}
	for _, tc := range cases {
		if got := CategoryForMimeType(tc.mimeType); got != tc.want {
			t.Fatalf("CategoryForMimeType(%q) = %s, want %s", tc.mimeType, got, tc.want)
		}
	}
}

func TestParseCategoryRejectsUnknown(t *testing.T) {
	if c, err := ParseCategory("pdf"); err != nil || c != CategoryPDF {
		t.Fatalf("ParseCategory(pdf) = %s, %v", c, err)
	}
	_, err := ParseCategory("spreadsheet")
	if !IsKind(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestWithProcessingReturnsNewSnapshot(t *testing.T) {
	original := FileRecord{ID: "f-1", OwnerID: "u-1", Category: CategoryPDF}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next := original.WithProcessing(Extraction{Text: "body", PageCount: 3}, "short", at)

	if original.Processed || original.ProcessedAt != nil || original.Metadata != nil {
		t.Fatalf("original snapshot was mutated: %+v", original)
	}
	if !next.Processed || next.ProcessedAt == nil || !next.ProcessedAt.Equal(at) {
		t.Fatalf("expected processed snapshot, got %+v", next)
	}
	if next.ExtractedText != "body" || next.Summary != "short" {
		t.Fatalf("unexpected processing fields: %+v", next)
	}
	if next.Metadata == nil || next.Metadata.PageCount == nil || *next.Metadata.PageCount != 3 {
		t.Fatalf("expected page count 3, got %+v", next.Metadata)
	}
}

func TestWithProcessingSanitizesText(t *testing.T) {
	next := FileRecord{ID: "f-1"}.WithProcessing(Extraction{Text: "Lab\x00result\xff"}, "ok\x00", time.Now())
	if next.ExtractedText != "Lab result\uFFFD" || next.Summary != "ok " {
		t.Fatalf("unexpected sanitized fields: %q %q", next.ExtractedText, next.Summary)
	}
}

func TestCallerValidate(t *testing.T) {
	if err := (Caller{ID: " "}).Validate(); !IsKind(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := (Caller{ID: "u-1"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
