package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
)

func piCase(name string, kp float64) sim.Case {
	m, _ := process.NewFOPDT(2, 10, 2)
	return sim.Case{
		Name:  name,
		Model: m,
		NewController: func() (sim.Controller, error) {
			cfg := control.DefaultConfig()
			cfg.Kp = kp
			return control.New(cfg)
		},
		Config: sim.DefaultConfig(),
	}
}

var _ = Describe("Compare", func() {
	It("returns outcomes in case order", func() {
		out, err := sim.Compare(context.Background(), []sim.Case{
			piCase("slow", 0.5),
			piCase("fast", 1.25),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0].Name).To(Equal("slow"))
		Expect(out[1].Name).To(Equal("fast"))
		Expect(out[0].Run.Len()).To(Equal(1001))
	})

	It("gives each case its own controller", func() {
		out, err := sim.Compare(context.Background(), []sim.Case{
			piCase("a", 1.25),
			piCase("b", 1.25),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Run.PV()).To(Equal(out[1].Run.PV()))
	})

	It("fails fast when a case cannot be built", func() {
		bad := piCase("bad", 1)
		bad.NewController = func() (sim.Controller, error) {
			return nil, dynamo.Invalid("kp", -1, "must be positive")
		}
		_, err := sim.Compare(context.Background(), []sim.Case{piCase("ok", 1), bad})
		Expect(errors.Is(err, dynamo.ErrInvalidParameter)).To(BeTrue())
	})
})

var _ = Describe("Ensemble", func() {
	It("varies only the noise seed", func() {
		c := piCase("noisy", 1.25)
		c.Config.NoiseStd = 0.1
		runs, err := sim.NewEnsemble(c, 3, 10).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(3))
		Expect(runs[0].PV()).NotTo(Equal(runs[1].PV()))
		Expect(runs[0].Setpoints()).To(Equal(runs[2].Setpoints()))
	})
})
