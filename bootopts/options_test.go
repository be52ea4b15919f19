package bootopts

import "testing"

func TestDefault(t *testing.T) {
	o := Default()
	if err := o.Verify(); err != nil {
		t.Errorf("Default().Verify() = %v, want nil", err)
	}
	if o.MLFQS {
		t.Error("Default().MLFQS = true, want false (priority+donation is the default)")
	}
}

func TestParseMLFQSFlag(t *testing.T) {
	o, err := Parse("-mlfqs -q")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !o.MLFQS {
		t.Error("Parse(\"-mlfqs -q\").MLFQS = false, want true")
	}
}

func TestParseTimerFreq(t *testing.T) {
	o, err := Parse("-timer-freq=1000")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.TimerFreq != 1000 {
		t.Errorf("TimerFreq = %d, want 1000", o.TimerFreq)
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	if _, err := Parse("-bogus"); err == nil {
		t.Error("Parse(\"-bogus\") returned nil error")
	}
}

func TestLoadYAML(t *testing.T) {
	o, err := Load([]byte("mlfqs: true\ntimer_freq: 200\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !o.MLFQS || o.TimerFreq != 200 {
		t.Errorf("Load: got %+v, want mlfqs=true timer_freq=200", o)
	}
}

func TestVerifyRejectsNonPositiveTimerFreq(t *testing.T) {
	o := Default()
	o.TimerFreq = 0
	if err := o.Verify(); err == nil {
		t.Error("Verify() with TimerFreq=0 returned nil error")
	}
}
