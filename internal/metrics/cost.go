package metrics

// QuadraticCost accumulates q x^2 + r u^2 over the run, the closed-loop
// counterpart of the stage cost the controller plans with.
type QuadraticCost struct {
	q, r float64
	sum  float64
}

func NewQuadraticCost(q, r float64) *QuadraticCost {
	return &QuadraticCost{q: q, r: r}
}

func (c *QuadraticCost) Name() string { return "quadratic_cost" }

func (c *QuadraticCost) Observe(t int, x, u float64) {
	c.sum += c.q*x*x + c.r*u*u
}

func (c *QuadraticCost) Value() float64 { return c.sum }

func (c *QuadraticCost) Reset() { c.sum = 0 }

// MaxDeviation is the largest |x| seen.
type MaxDeviation struct {
	max float64
}

func NewMaxDeviation() *MaxDeviation { return &MaxDeviation{} }

func (m *MaxDeviation) Name() string { return "max_deviation" }

func (m *MaxDeviation) Observe(t int, x, u float64) {
	if x < 0 {
		x = -x
	}
	if x > m.max {
		m.max = x
	}
}

func (m *MaxDeviation) Value() float64 { return m.max }

func (m *MaxDeviation) Reset() { m.max = 0 }
