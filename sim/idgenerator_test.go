package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IDGenerator", func() {
	It("should generate sequential IDs starting from 1", func() {
		g := NewSequentialIDGenerator()

		Expect(g.Generate()).To(Equal("1"))
		Expect(g.Generate()).To(Equal("2"))
		Expect(g.Generate()).To(Equal("3"))
	})

	It("should keep standalone generators independent", func() {
		g1 := NewSequentialIDGenerator()
		g2 := NewSequentialIDGenerator()

		g1.Generate()

		Expect(g2.Generate()).To(Equal("1"))
	})

	It("should generate unique xids", func() {
		g := xidGenerator{}
		seen := make(map[string]bool)

		for range 100 {
			id := g.Generate()
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}
	})

	It("should refuse to switch generators after first use", func() {
		GetIDGenerator().Generate()

		Expect(func() { UseXIDGenerator() }).To(Panic())
	})
})
