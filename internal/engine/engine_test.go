package engine

import "testing"

func TestRoundRobinCyclesCandidates(t *testing.T) {
	t.Parallel()

	r := &RoundRobin{}
	candidates := []string{"A", "B", "C"}
	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, r.Select("MSFT", candidates))
	}
	want := []string{"A", "B", "C", "A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Select() call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.HealthCooldown == 0 {
		t.Error("HealthCooldown default not applied")
	}
	if cfg.HousekeepingInterval == 0 {
		t.Error("HousekeepingInterval default not applied")
	}
	if cfg.Selector == nil {
		t.Error("Selector default not applied")
	}
	if cfg.Registerer == nil {
		t.Error("Registerer default not applied")
	}
}
