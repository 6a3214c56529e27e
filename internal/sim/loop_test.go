package sim_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/san-kum/mpcsim/internal/opt/native"
	"github.com/san-kum/mpcsim/internal/plant"
	"github.com/san-kum/mpcsim/internal/sim"
)

type infeasible struct{}

func (infeasible) Solve(ctx context.Context, p *opt.Problem) (opt.Result, error) {
	return opt.Result{Status: opt.StatusInfeasible}, nil
}

func mpcSimulator(env opt.Env, horizon, period int) *sim.Simulator {
	f := mpc.NewFormulator(env, horizon, mpc.DefaultDynamics(), mpc.DefaultWeights(), mpc.DefaultBounds())
	ctrl, err := mpc.NewController(f, period, mpc.WithLogger(zerolog.Nop()))
	Expect(err).NotTo(HaveOccurred())
	return sim.New(ctrl, plant.Nominal())
}

var _ = Describe("Receding-horizon loop", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("with the native backend", func() {
		var result *sim.Result

		BeforeEach(func() {
			var err error
			result, err = mpcSimulator(native.NewEnv(), 10, 10).Run(ctx, 1.0, sim.Config{Steps: 100})
			Expect(err).NotTo(HaveOccurred())
		})

		It("records one state per step plus the initial one", func() {
			Expect(result.States).To(HaveLen(101))
			Expect(result.States[0]).To(Equal(1.0))
		})

		It("re-plans once per period", func() {
			Expect(result.Inputs).To(HaveLen(10))
			Expect(result.Fallbacks).To(BeEmpty())
		})

		It("keeps every input inside the box", func() {
			for _, u := range result.Inputs {
				Expect(u).To(BeNumerically(">=", -1-1e-9))
				Expect(u).To(BeNumerically("<=", 1+1e-9))
			}
		})

		It("holds each input for a full period", func() {
			for t, u := range result.Applied {
				Expect(u).To(Equal(result.Inputs[t/10]))
			}
		})

		It("evolves the state through the plant, not the model", func() {
			p := plant.Nominal()
			for t := range result.Applied {
				Expect(result.States[t+1]).To(BeNumerically("~", p.Advance(result.States[t], result.Applied[t]), 1e-12))
			}
		})
	})

	Context("when no re-plan is optimal", func() {
		It("applies zero input and reproduces the free response", func() {
			result, err := mpcSimulator(opt.NewEnv(infeasible{}), 10, 10).Run(ctx, 1.0, sim.Config{Steps: 100})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Inputs).To(HaveLen(10))
			for _, u := range result.Inputs {
				Expect(u).To(Equal(0.0))
			}
			Expect(result.Fallbacks).To(HaveLen(10))
			Expect(result.Fallbacks[1].Step).To(Equal(10))
			Expect(result.Fallbacks[1].Status).To(Equal("infeasible"))
			Expect(result.Metrics["fallbacks"]).To(Equal(10.0))

			free := plant.FreeResponse(plant.Nominal(), 1.0, 100)
			for t := range free {
				Expect(result.States[t]).To(BeNumerically("~", free[t], 1e-12))
			}
		})
	})

	Context("with a horizon of zero", func() {
		It("fails before any step completes", func() {
			result, err := mpcSimulator(native.NewEnv(), 0, 10).Run(ctx, 1.0, sim.Config{Steps: 100})
			Expect(err).To(MatchError(mpc.ErrInconsistentDims))

			var stepErr *sim.StepError
			Expect(err).To(BeAssignableToTypeOf(stepErr))
			Expect(result.States).To(HaveLen(1))
		})
	})

	Context("with a period of one", func() {
		It("re-plans at every step", func() {
			result, err := mpcSimulator(native.NewEnv(), 5, 1).Run(ctx, 0.5, sim.Config{Steps: 6})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Inputs).To(HaveLen(6))
			Expect(result.Applied).To(Equal(result.Inputs))
		})
	})
})
