package cronproj

import (
	"testing"
	"time"
)

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad fixture time %q: %v", s, err)
	}
	return ts.UTC()
}

func TestNormalizeArity(t *testing.T) {
	cases := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"five fields", "*/5 * * * *", false},
		{"six fields", "0 */5 * * * *", false},
		{"seven fields", "0 0 */5 * * * *", false},
		{"four fields is invalid", "* * * *", true},
		{"eight fields is invalid", "* * * * * * * *", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalize(tc.expr)
			if tc.wantErr && err == nil {
				t.Fatalf("expected an error normalizing %q", tc.expr)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error normalizing %q: %v", tc.expr, err)
			}
		})
	}
}

func TestInvalidArityError(t *testing.T) {
	_, err := Project("* * * *", "UTC", time.Now().UTC(), 1)
	if err == nil {
		t.Fatal("expected an InvalidCronError")
	}
	var cronErr *InvalidCronError
	if !asInvalidCron(err, &cronErr) {
		t.Fatalf("expected *InvalidCronError, got %T: %v", err, err)
	}
}

func asInvalidCron(err error, target **InvalidCronError) bool {
	if e, ok := err.(*InvalidCronError); ok {
		*target = e
		return true
	}
	return false
}

func TestInvalidTimeZone(t *testing.T) {
	_, err := Project("30 3 * * *", "Not/AZone", time.Now().UTC(), 1)
	if err == nil {
		t.Fatal("expected an InvalidTimeZoneError")
	}
	if _, ok := err.(*InvalidTimeZoneError); !ok {
		t.Fatalf("expected *InvalidTimeZoneError, got %T: %v", err, err)
	}
}

// S1 from spec.md 8: every 5 minutes in UTC, hour wildcard short-circuits
// straight through without zone reinterpretation.
func TestWildcardHourPassesThroughUTC(t *testing.T) {
	anchor := mustUTC(t, "2025-01-01T00:00:00Z")
	got, err := Project("*/5 * * * *", "UTC", anchor, 1)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	want := mustUTC(t, "2025-01-01T00:05:00Z")
	if len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("got %v, want [%v]", got, want)
	}
}

// Winter offset: America/Los_Angeles is UTC-8 (PST) in January.
func TestTimeZoneReinterpretationWinterOffset(t *testing.T) {
	anchor := mustUTC(t, "2022-01-03T00:00:00Z") // a Monday
	got, err := Project("30 3 * * *", "America/Los_Angeles", anchor, 1)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	want := mustUTC(t, "2022-01-03T11:30:00Z") // 03:30 PST == 11:30 UTC
	if len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("got %v, want [%v]", got, want)
	}
}

// Summer offset: America/Los_Angeles is UTC-7 (PDT) in July.
func TestTimeZoneReinterpretationSummerOffset(t *testing.T) {
	anchor := mustUTC(t, "2022-07-04T00:00:00Z")
	got, err := Project("30 3 * * *", "America/Los_Angeles", anchor, 1)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	want := mustUTC(t, "2022-07-04T10:30:00Z") // 03:30 PDT == 10:30 UTC
	if len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("got %v, want [%v]", got, want)
	}
}

// Cron round-trip law from spec.md 8: a 5-field expression normalized and
// projected must match its explicit 7-field form "0 <E> *" on the same
// anchor.
func TestCronRoundTripLaw(t *testing.T) {
	anchor := mustUTC(t, "2025-03-01T00:00:00Z")
	fiveField, err := Project("15 4 * * *", "UTC", anchor, 3)
	if err != nil {
		t.Fatalf("5-field Project failed: %v", err)
	}
	sevenField, err := Project("0 15 4 * * * *", "UTC", anchor, 3)
	if err != nil {
		t.Fatalf("7-field Project failed: %v", err)
	}
	if len(fiveField) != len(sevenField) {
		t.Fatalf("length mismatch: %d vs %d", len(fiveField), len(sevenField))
	}
	for i := range fiveField {
		if !fiveField[i].Equal(sevenField[i]) {
			t.Errorf("index %d: %v != %v", i, fiveField[i], sevenField[i])
		}
	}
}

func TestIdempotentProjectionSameAnchor(t *testing.T) {
	anchor := mustUTC(t, "2025-06-15T12:00:00Z")
	first, err := Project("*/10 * * * *", "UTC", anchor, 5)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	second, err := Project("*/10 * * * *", "UTC", anchor, 5)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("projection is not deterministic: %v != %v", first[i], second[i])
		}
	}
}
