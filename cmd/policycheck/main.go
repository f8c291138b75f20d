// Command policycheck validates the detection policy resulting from the
// current environment and prints the effective quorum table and intensity
// bands. Run it before a deploy to catch a misconfigured QUORUM_TABLE or
// threshold override.
//
// Usage:
//
//	QUORUM_TABLE="5:0.60,20:0.40,100:0.25" go run ./cmd/policycheck
package main

import (
	"fmt"
	"os"

	"github.com/kenet-project/seismic-fusion/internal/config"
	"github.com/kenet-project/seismic-fusion/internal/domain"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() int {
	fmt.Println("=== Detection Policy Check ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	policy := cfg.Quorum

	phases := []*phase{
		checkStructure(policy),
		checkMonotonicity(policy),
		printQuorumTable(policy),
		printIntensityBands(),
	}

	fmt.Println()
	failed := 0
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-28s %s\n", p.name, status)
		for _, e := range p.errors {
			fmt.Printf("    %s\n", e)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d phase(s) failed\n", failed)
		return 1
	}
	fmt.Println("\nall phases passed")
	return 0
}

func checkStructure(policy domain.QuorumPolicy) *phase {
	p := &phase{name: "policy structure"}
	if err := policy.Validate(); err != nil {
		p.errorf("%v", err)
	}
	return p
}

// checkMonotonicity sweeps populations and confirms the required ratio
// never rises: more neighbors must never make confirmation easier to
// fake with the same absolute signal count.
func checkMonotonicity(policy domain.QuorumPolicy) *phase {
	p := &phase{name: "ratio monotonicity"}
	prev := policy.RequiredRatio(1)
	for pop := 2; pop <= 1000; pop++ {
		r := policy.RequiredRatio(pop)
		if r > prev {
			p.errorf("required ratio rises from %.3f to %.3f at population %d", prev, r, pop)
			break
		}
		prev = r
	}
	return p
}

func printQuorumTable(policy domain.QuorumPolicy) *phase {
	p := &phase{name: "quorum table"}

	fmt.Println("effective quorum table:")
	for _, b := range policy.Breakpoints {
		fmt.Printf("  population <= %-5d ratio %.2f\n", b.MaxPopulation, b.Ratio)
	}
	fmt.Printf("  population >  %-5d ratio %.2f\n",
		policy.Breakpoints[len(policy.Breakpoints)-1].MaxPopulation, policy.BaseRatio)
	fmt.Printf("  small-area bound: population <= %d confirms with %d signal(s)\n",
		policy.SmallAreaPopulation, policy.MinSignalCount)
	fmt.Printf("  realism ceiling: %.2fg\n", policy.RealismCeilingG)
	fmt.Println()

	fmt.Println("sample decisions:")
	samples := []struct{ signals, population int }{
		{1, 1}, {1, 3}, {3, 5}, {8, 20}, {25, 100}, {30, 200},
	}
	for _, s := range samples {
		fmt.Printf("  %3d signals / %4d nearby -> confirms=%v\n",
			s.signals, s.population, policy.Confirms(s.signals, s.population))
	}
	return p
}

func printIntensityBands() *phase {
	p := &phase{name: "intensity bands"}

	labels := domain.IntensityLabels()
	if len(labels) != 9 {
		p.errorf("expected 9 intensity bands, got %d", len(labels))
	}

	fmt.Println("intensity bands (weakest first):")
	for _, l := range labels {
		fmt.Printf("  %s\n", l)
	}
	return p
}
