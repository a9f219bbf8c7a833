package dedup

import (
	"errors"
	"testing"
	"time"

	"horse.fit/event-pipeline/internal/event"
)

func ethDenver() event.Candidate {
	return event.Candidate{
		Name: "ETHDenver",
		Date: event.NewDate(2026, time.February, 23),
		City: "Denver",
	}
}

var cryptonomads = Origin{Source: "cryptonomads", SourceURL: "https://cryptonomads.org", Prefix: "cryptonomads"}

func TestAdmit_AcceptsWithSourceID(t *testing.T) {
	t.Parallel()

	session := NewSession(nil, nil)
	decision := session.Admit(ethDenver(), cryptonomads)
	if !decision.Accepted() {
		t.Fatalf("expected accept, got %+v", decision)
	}
	if decision.Event.SourceID != "cryptonomads-ethdenver-2026-02-23" {
		t.Fatalf("unexpected source id: %q", decision.Event.SourceID)
	}
	if decision.Event.Source != "cryptonomads" || decision.Event.Status != event.StatusPublished {
		t.Fatalf("unexpected persisted fields: %+v", decision.Event)
	}
	if decision.Event.Type != event.TypeOther {
		t.Fatalf("expected default type other, got %q", decision.Event.Type)
	}
	if decision.Err() != nil {
		t.Fatalf("expected nil error for accepted decision, got %v", decision.Err())
	}

	fingerprints, sourceIDs := session.Size()
	if fingerprints != 1 || sourceIDs != 1 {
		t.Fatalf("unexpected session size: fingerprints=%d source_ids=%d", fingerprints, sourceIDs)
	}
}

func TestAdmit_DuplicateWithinRun(t *testing.T) {
	t.Parallel()

	session := NewSession(nil, nil)
	if !session.Admit(ethDenver(), cryptonomads).Accepted() {
		t.Fatalf("expected first record to be accepted")
	}

	second := ethDenver()
	second.Name = "ETHDenver!!"
	decision := session.Admit(second, Origin{Source: "other-site", Prefix: "othersite"})
	if decision.Kind != KindRejectedDuplicate {
		t.Fatalf("expected duplicate, got %+v", decision)
	}
	if decision.MatchedKey != "ethdenver|2026-02-23|denver" {
		t.Fatalf("unexpected matched key: %q", decision.MatchedKey)
	}
	if !errors.Is(decision.Err(), ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", decision.Err())
	}
}

func TestAdmit_SourceIDCheckedBeforeFingerprints(t *testing.T) {
	t.Parallel()

	session := NewSession([]string{"ethdenver|2026-02-23|denver"}, []string{"cryptonomads-ethdenver-2026-02-23"})
	decision := session.Admit(ethDenver(), cryptonomads)
	if decision.Kind != KindRejectedDuplicate || decision.MatchedKey != "cryptonomads-ethdenver-2026-02-23" {
		t.Fatalf("expected source_id match to win, got %+v", decision)
	}
}

func TestAdmit_URLFingerprintMatchesAcrossNames(t *testing.T) {
	t.Parallel()

	session := NewSession(nil, nil)
	first := ethDenver()
	first.EventURL = "https://www.ethdenver.com/"
	if !session.Admit(first, cryptonomads).Accepted() {
		t.Fatalf("expected first record to be accepted")
	}

	renamed := event.Candidate{
		Name:     "ETH Denver Main Event",
		Date:     event.NewDate(2026, time.February, 24),
		EventURL: "http://ethdenver.com?ref=feed",
	}
	decision := session.Admit(renamed, cryptonomads)
	if decision.Kind != KindRejectedDuplicate || decision.MatchedKey != "url:ethdenver.com" {
		t.Fatalf("expected url duplicate, got %+v", decision)
	}
}

func TestAdmit_RejectsInvalid(t *testing.T) {
	t.Parallel()

	date := event.NewDate(2026, time.March, 1)
	cases := []event.Candidate{
		{Name: "", Date: date},
		{Name: "Hackathon"},
		{Name: " ab ", Date: date},
		{Name: "Member Discount", Date: date},
		{Name: "member discount: 20% off", Date: date},
		{Name: "RSVP", Date: date},
		{Name: "Register Now!", Date: date},
		{Name: "Get Tickets", Date: date},
	}

	session := NewSession(nil, nil)
	for _, c := range cases {
		decision := session.Admit(c, cryptonomads)
		if decision.Kind != KindRejectedInvalid {
			t.Fatalf("expected %q to be rejected as invalid, got %+v", c.Name, decision)
		}
		if !errors.Is(decision.Err(), ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord for %q, got %v", c.Name, decision.Err())
		}
	}
	if fingerprints, sourceIDs := session.Size(); fingerprints != 0 || sourceIDs != 0 {
		t.Fatalf("invalid records must not touch session state")
	}

	if !session.Admit(event.Candidate{Name: "Registration Day Hackathon", Date: date}, cryptonomads).Accepted() {
		t.Fatalf("expected real title containing 'registration' to be accepted")
	}
}

func TestSeedFrom_RangedEventsBlockCoveredDays(t *testing.T) {
	t.Parallel()

	session := SeedFrom([]event.Persisted{
		{
			Candidate: event.Candidate{Name: "Camp BUIDL", Date: event.NewDate(2026, time.February, 14), City: "Denver"},
			SourceID:  "cryptonomads-camp-buidl-2026-02-14",
			EndDate:   event.NewDate(2026, time.February, 16),
			MultiDay:  true,
		},
		{SourceID: "legacy-row-without-date"},
	})

	dayTwo := event.Candidate{Name: "Camp BUIDL", Date: event.NewDate(2026, time.February, 15), City: "Denver"}
	decision := session.Admit(dayTwo, Origin{Source: "other", Prefix: "other"})
	if decision.Kind != KindRejectedDuplicate || decision.MatchedKey != "camp buidl|2026-02-15|denver" {
		t.Fatalf("expected covered day to be a duplicate, got %+v", decision)
	}

	dayFour := dayTwo
	dayFour.Date = event.NewDate(2026, time.February, 17)
	if !session.Admit(dayFour, Origin{Source: "other", Prefix: "other"}).Accepted() {
		t.Fatalf("expected day outside the range to be accepted")
	}

	if _, sourceIDs := session.Size(); sourceIDs != 3 {
		t.Fatalf("expected 3 source ids after seeding and one accept, got %d", sourceIDs)
	}
}

func TestForget_ReadmitsRecord(t *testing.T) {
	t.Parallel()

	session := NewSession(nil, nil)
	first := session.Admit(ethDenver(), cryptonomads)
	if !first.Accepted() {
		t.Fatalf("expected first record to be accepted")
	}
	other := event.Candidate{Name: "Camp BUIDL", Date: event.NewDate(2026, time.February, 14), City: "Denver"}
	if !session.Admit(other, cryptonomads).Accepted() {
		t.Fatalf("expected unrelated record to be accepted")
	}

	session.Forget(first.Event)
	if fingerprints, sourceIDs := session.Size(); fingerprints != 1 || sourceIDs != 1 {
		t.Fatalf("expected only the unrelated record to remain, got fingerprints=%d source_ids=%d", fingerprints, sourceIDs)
	}

	again := session.Admit(ethDenver(), Origin{Source: "other-site", Prefix: "othersite"})
	if !again.Accepted() {
		t.Fatalf("expected forgotten record to be admitted again, got %+v", again)
	}
	if session.Admit(other, cryptonomads).Kind != KindRejectedDuplicate {
		t.Fatalf("expected unrelated record to stay blocked")
	}
}
