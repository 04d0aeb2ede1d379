package phi

import "testing"

func TestScanDetectsEachKind(t *testing.T) {
	cases := []struct {
		kind PatternKind
		text string
	}{
		{KindName, "Patient was seen by Dr. Mehta yesterday"},
		{KindDate, "Follow up scheduled for 03/04/2024"},
		{KindDate, "Admitted January 15, 2024 with chest pain"},
		{KindPhone, "Call back at (555) 123-4567"},
		{KindPhone, "Contact 555-123-4567 for results"},
		{KindMRN, "See chart MRN: 556677"},
		{KindAddress, "Discharged to 42 Green Park Road"},
		{KindEmail, "Send records to patient@example.com"},
		{KindSSN, "SSN on file 123-45-6789"},
		{KindAadhaar, "ID 1234 5678 9012 verified"},
		{KindPAN, "Tax ID ABCDE1234F on record"},
		{KindIP, "Uploaded from 192.168.1.10"},
	}
	for _, tc := range cases {
		res := Scan(tc.text)
		if !res.Blocked {
			t.Fatalf("expected %q to be blocked (%s)", tc.text, tc.kind)
		}
		if !res.Matched(tc.kind) {
			t.Fatalf("expected kind %s for %q, got %v", tc.kind, tc.text, res.Kinds)
		}
	}
}

func TestScanReportsMultipleKinds(t *testing.T) {
	res := Scan("Dr. Mehta saw the patient on 03/04/2024, MRN: 556677")
	if !res.Blocked {
		t.Fatalf("expected blocked result")
	}
	for _, kind := range []PatternKind{KindName, KindDate, KindMRN} {
		if !res.Matched(kind) {
			t.Fatalf("expected kind %s, got %v", kind, res.Kinds)
		}
	}
}

func TestScanPassesCleanNote(t *testing.T) {
	note := "Patient presents with elevated HbA1c of 8.2 percent. " +
		"Metformin dose discussed. Recommend dietary counseling and a repeat panel in three months."
	res := Scan(note)
	if res.Blocked {
		t.Fatalf("clean note blocked, kinds: %v", res.Kinds)
	}
	if len(res.Kinds) != 0 {
		t.Fatalf("expected no kinds, got %v", res.Kinds)
	}
}

func TestScanEmptyString(t *testing.T) {
	if res := Scan(""); res.Blocked || len(res.Kinds) != 0 {
		t.Fatalf("empty input should match nothing, got %+v", res)
	}
}

func TestScanKindsStableOrder(t *testing.T) {
	text := "MRN# 1122 noted by Dr. Rao"
	first := Scan(text)
	for i := 0; i < 10; i++ {
		res := Scan(text)
		if len(res.Kinds) != len(first.Kinds) {
			t.Fatalf("kind count changed between scans: %v vs %v", first.Kinds, res.Kinds)
		}
		for j := range res.Kinds {
			if res.Kinds[j] != first.Kinds[j] {
				t.Fatalf("kind order changed between scans: %v vs %v", first.Kinds, res.Kinds)
			}
		}
	}
}
