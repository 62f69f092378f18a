package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit {
		t.Fatal("expected default limit")
	}
	if NormalizeLimit(1000) != MaxLimit {
		t.Fatal("expected max limit")
	}
	if LimitWithBuffer(5) != 6 {
		t.Fatal("expected buffer of one")
	}
}

type row struct {
	id uuid.UUID
	at time.Time
}

func TestBuildEmitsCursorOnlyWhenMoreRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []row{
		{uuid.New(), base},
		{uuid.New(), base.Add(-time.Minute)},
		{uuid.New(), base.Add(-2 * time.Minute)},
	}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := Build(rows, 2, cursorOf)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(page.Items), page.NextCursor)
	}
	parsed, err := ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if parsed.ID != rows[1].id || !parsed.CreatedAt.Equal(rows[1].at) {
		t.Fatalf("cursor should point at last kept row, got %+v", parsed)
	}

	last := Build(rows[:2], 2, cursorOf)
	if last.NextCursor != "" {
		t.Fatal("final page should not carry a cursor")
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor(""); c != nil || err != nil {
		t.Fatal("empty cursor should be nil without error")
	}
	if _, err := ParseCursor("!!!"); err == nil {
		t.Fatal("expected decode error")
	}
	for _, payload := range []string{`not json`, `{"t":"2026-03-01T12:00:00Z"}`, `{"id":"` + uuid.NewString() + `"}`} {
		if _, err := ParseCursor(base64.RawURLEncoding.EncodeToString([]byte(payload))); err == nil {
			t.Fatalf("expected %s to be rejected", payload)
		}
	}
}
