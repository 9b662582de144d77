package output

import "testing"

type countingSink struct {
	phases, steps, finished int
}

func (c *countingSink) InitPhase(_, _ int) { c.phases++ }
func (c *countingSink) Step(_ int) { c.steps++ }
func (c *countingSink) Finish() { c.finished++ }

func TestMultiProgress(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := MultiProgress{a, NoOpProgress{}, b}

	m.InitPhase(1, 2)
	m.Step(1)
	m.Step(2)
	m.Finish()

	for i, c := range []*countingSink{a, b} {
		if c.phases != 1 || c.steps != 2 || c.finished != 1 {
			t.Errorf("sink %d = %+v", i, *c)
		}
	}
}
