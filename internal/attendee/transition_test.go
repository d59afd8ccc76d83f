package attendee

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"eventcheckin/internal/timefmt"
)

var t0 = time.Date(2024, 6, 14, 19, 0, 0, 0, time.UTC)

func fixture(status Status) Attendee {
	a := Attendee{
		ID:            "a-1",
		Name:          "Ada Lovelace",
		Email:         "ada@example.com",
		Barcode:       "123456789012",
		CurrentStatus: status,
		CreatedAt:     t0.Add(-24 * time.Hour),
	}
	if status != NeverEntered {
		in := t0.Add(-65 * time.Minute)
		a.TimeIn = &in
		a.CheckedIn = true
		a.CheckedInAt = &in
	}
	if status == Out {
		out := t0.Add(-5 * time.Minute)
		a.TimeOut = &out
		a.TotalTimeSpent = 3600
	}
	return a
}

func TestCheckTable(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		want   Violation
	}{
		{NeverEntered, ActionTimeIn, ""},
		{NeverEntered, ActionTimeOut, NotEntered},
		{In, ActionTimeIn, AlreadyInside},
		{In, ActionTimeOut, ""},
		{Out, ActionTimeIn, CycleComplete},
		{Out, ActionTimeOut, CycleComplete},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			err := Check(fixture(tc.from), tc.action)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var rule *RuleError
			if !errors.As(err, &rule) {
				t.Fatalf("expected RuleError, got %v", err)
			}
			if rule.Violation != tc.want {
				t.Errorf("violation = %s, want %s", rule.Violation, tc.want)
			}
		})
	}
}

func TestCheckUnknownStatus(t *testing.T) {
	err := Check(Attendee{CurrentStatus: "LOST"}, ActionTimeIn)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestApplyTimeIn(t *testing.T) {
	before := fixture(NeverEntered)
	stale := t0.Add(-time.Hour)
	before.TimeOut = &stale

	next, err := Apply(before, ActionTimeIn, t0)
	if err != nil {
		t.Fatal(err)
	}
	if next.CurrentStatus != In || !next.CheckedIn {
		t.Errorf("status = %s checked_in = %v", next.CurrentStatus, next.CheckedIn)
	}
	if next.TimeIn == nil || !next.TimeIn.Equal(t0) {
		t.Errorf("time_in = %v", next.TimeIn)
	}
	if next.TimeOut != nil {
		t.Errorf("time_out should be cleared, got %v", next.TimeOut)
	}
	if before.CurrentStatus != NeverEntered || before.TimeOut == nil {
		t.Error("input record was modified")
	}
}

func TestApplyTimeOutAccumulates(t *testing.T) {
	t.Run("first session", func(t *testing.T) {
		next, err := Apply(fixture(In), ActionTimeOut, t0)
		if err != nil {
			t.Fatal(err)
		}
		if next.CurrentStatus != Out {
			t.Errorf("status = %s", next.CurrentStatus)
		}
		if next.TotalTimeSpent.String() != "3900 seconds" {
			t.Errorf("total = %s", next.TotalTimeSpent)
		}
		if next.TimeOut == nil || !next.TimeOut.Equal(t0) {
			t.Errorf("time_out = %v", next.TimeOut)
		}
	})
	t.Run("adds to prior total", func(t *testing.T) {
		a := fixture(In)
		a.TotalTimeSpent = 100
		next, _ := Apply(a, ActionTimeOut, t0)
		if next.TotalTimeSpent != 4000 {
			t.Errorf("total = %d", next.TotalTimeSpent)
		}
	})
	t.Run("missing time in", func(t *testing.T) {
		a := fixture(In)
		a.TimeIn = nil
		next, _ := Apply(a, ActionTimeOut, t0)
		if next.TotalTimeSpent != 0 || next.CurrentStatus != Out {
			t.Errorf("got %+v", next)
		}
	})
}

func TestOutIsTerminal(t *testing.T) {
	for _, action := range []Action{ActionTimeIn, ActionTimeOut, Infer(Out)} {
		a := fixture(Out)
		next, err := Apply(a, action, t0)
		if err == nil {
			t.Fatalf("%s on OUT succeeded", action)
		}
		if next.CurrentStatus != Out || next.TotalTimeSpent != a.TotalTimeSpent {
			t.Fatalf("%s on OUT mutated record: %+v", action, next)
		}
	}
}

func TestInfer(t *testing.T) {
	if Infer(NeverEntered) != ActionTimeIn || Infer(In) != ActionTimeOut || Infer(Out) != ActionTimeIn {
		t.Fatal("unexpected toggle inference")
	}
}

func TestRuleErrorMessage(t *testing.T) {
	cases := map[Violation]string{
		AlreadyInside: "Ada Lovelace is already inside",
		CycleComplete: "Ada Lovelace has already completed their entry/exit cycle",
		NotEntered:    "Ada Lovelace has not entered yet",
	}
	for v, want := range cases {
		err := &RuleError{Violation: v, Attendee: fixture(In)}
		if err.Error() != want {
			t.Errorf("%s: %q", v, err.Error())
		}
	}
}

func TestLabels(t *testing.T) {
	if In.Label().Text != "Inside" || Out.Label().Text != "Completed" || NeverEntered.Label().Text != "Not Entered" {
		t.Fatal("unexpected labels")
	}
}

func TestNewBarcode(t *testing.T) {
	re := regexp.MustCompile(`^[1-9][0-9]{11}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewBarcode()
		if err != nil {
			t.Fatal(err)
		}
		if !re.MatchString(code) {
			t.Fatalf("barcode %q is not 12 digits", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Errorf("too many collisions: %d unique of 50", len(seen))
	}
}

func TestSummarize(t *testing.T) {
	list := []Attendee{fixture(NeverEntered), fixture(In), fixture(Out)}
	s := Summarize(list, t0)
	if s.Total != 3 || s.CheckedIn != 2 || s.NotCheckedIn != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.CheckInRate != 67 {
		t.Errorf("rate = %d", s.CheckInRate)
	}
	if s.CurrentlyInside != 1 || s.Completed != 1 {
		t.Errorf("status counts = %+v", s)
	}
	// 3600 stored for the completed attendee, 3900 live for the one inside.
	if s.TotalTimeSpent != timefmt.Seconds(7500) || s.TotalTimeDisplay != "2h 5m" {
		t.Errorf("time = %d %q", s.TotalTimeSpent, s.TotalTimeDisplay)
	}

	if empty := Summarize(nil, t0); empty.CheckInRate != 0 || empty.TotalTimeDisplay != "0m" {
		t.Errorf("empty = %+v", empty)
	}
}

func TestRegistrationAndPatch(t *testing.T) {
	table := "  "
	r := Registration{Name: " Grace ", Email: " Grace@Example.com ", TableNumber: &table}.Normalize()
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	if r.Name != "Grace" || r.Email != "grace@example.com" || r.TableNumber != nil {
		t.Errorf("normalize = %+v", r)
	}
	if err := (Registration{Name: "x", Email: "nope"}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected invalid email, got %v", err)
	}

	if err := (Patch{}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty patch accepted")
	}
	seat := "B4"
	p := Patch{SeatNumber: &seat}
	got := p.ApplyTo(fixture(In))
	if got.SeatNumber == nil || *got.SeatNumber != "B4" || got.Name != "Ada Lovelace" {
		t.Errorf("patched = %+v", got)
	}
}
