package swipe_test

import (
	"fmt"
	"math/rand/v2"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conorfennell/knolnote/internal/clock"
	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/swipe"
)

const (
	frontDelay = 3 * time.Second
	backDelay  = 2 * time.Second
)

func cards(fronts ...string) []domain.Flashcard {
	out := make([]domain.Flashcard, len(fronts))
	for i, f := range fronts {
		out[i] = domain.Flashcard{
			ID:    fmt.Sprintf("c%d", i),
			Front: f,
			Back:  "back of " + f,
			Type:  domain.Forward,
		}
	}
	return out
}

func queueIDs(s *swipe.Session) []string {
	var ids []string
	pos, total := s.Progress()
	Expect(pos).To(Equal(0))
	for i := 0; i < total; i++ {
		c, ok := s.Current()
		Expect(ok).To(BeTrue())
		ids = append(ids, c.ID)
		Expect(s.Decide(swipe.Good)).To(Succeed())
	}
	return ids
}

var _ = Describe("Session", func() {
	var (
		fake    *clock.Fake
		session *swipe.Session
	)

	BeforeEach(func() {
		fake = clock.NewFake()
		session = swipe.New(
			swipe.WithClock(fake),
			swipe.WithDelays(frontDelay, backDelay),
			swipe.WithRand(rand.New(rand.NewPCG(7, 11))),
		)
		session.Start(cards("Cell", "Atom", "Ion", "Mitochondria"))
	})

	Context("when deciding", func() {
		It("should advance and remember bad cards", func() {
			Expect(session.Decide(swipe.Bad)).To(Succeed())
			Expect(session.Decide(swipe.Good)).To(Succeed())
			Expect(session.Decide(swipe.Bad)).To(Succeed())

			pos, total := session.Progress()
			Expect(pos).To(Equal(3))
			Expect(total).To(Equal(4))
			Expect(session.Missed()).To(Equal([]string{"c0", "c2"}))
		})

		It("should report completion past the end", func() {
			for i := 0; i < 4; i++ {
				Expect(session.Decide(swipe.Good)).To(Succeed())
			}
			_, ok := session.Current()
			Expect(ok).To(BeFalse())
			Expect(session.Decide(swipe.Good)).To(MatchError(swipe.ErrSessionComplete))
		})

		It("should hide the back of the next card", func() {
			session.Flip()
			Expect(session.Phase()).To(Equal(swipe.Back))
			Expect(session.Decide(swipe.Good)).To(Succeed())
			Expect(session.Revealed()).To(BeFalse())
		})
	})

	Context("when restarting", func() {
		It("should restudy only missed cards in original order", func() {
			Expect(session.Decide(swipe.Good)).To(Succeed())
			Expect(session.Decide(swipe.Bad)).To(Succeed())
			Expect(session.Decide(swipe.Good)).To(Succeed())
			Expect(session.Decide(swipe.Bad)).To(Succeed())

			session.RestartMissed()

			Expect(session.Missed()).To(BeEmpty())
			Expect(queueIDs(session)).To(Equal([]string{"c1", "c3"}))
		})

		It("should restart everything and forget missed cards", func() {
			Expect(session.Decide(swipe.Bad)).To(Succeed())
			session.Filter("atom")

			session.RestartAll()

			Expect(session.Missed()).To(BeEmpty())
			Expect(session.Term()).To(BeEmpty())
			Expect(queueIDs(session)).To(Equal([]string{"c0", "c1", "c2", "c3"}))
		})

		It("should produce an empty queue when nothing was missed", func() {
			session.RestartMissed()
			_, ok := session.Current()
			Expect(ok).To(BeFalse())
		})
	})

	Context("when shuffling and filtering", func() {
		It("should shuffle into a permutation and reset the position", func() {
			Expect(session.Decide(swipe.Good)).To(Succeed())
			session.Shuffle()

			Expect(queueIDs(session)).To(ConsistOf("c0", "c1", "c2", "c3"))
		})

		It("should match front or back ignoring case", func() {
			session.Filter("ATOM")
			Expect(queueIDs(session)).To(Equal([]string{"c1"}))

			session.Filter("back of")
			_, total := session.Progress()
			Expect(total).To(Equal(4))
		})

		It("should restore the original order when the term is cleared", func() {
			session.Shuffle()
			session.Filter("")
			Expect(queueIDs(session)).To(Equal([]string{"c0", "c1", "c2", "c3"}))
		})
	})

	Context("when auto-playing", func() {
		It("should show the front, then the back, then advance", func() {
			Expect(session.StartAutoPlay()).To(BeTrue())
			Expect(session.Phase()).To(Equal(swipe.Front))

			fake.Advance(frontDelay)
			Expect(session.Phase()).To(Equal(swipe.Back))

			fake.Advance(backDelay)
			card, _ := session.Current()
			Expect(card.ID).To(Equal("c1"))
			Expect(session.Phase()).To(Equal(swipe.Front))
			Expect(session.AutoPlaying()).To(BeTrue())
		})

		It("should stop at the end of the queue without marking cards missed", func() {
			Expect(session.StartAutoPlay()).To(BeTrue())

			fake.Advance(4 * (frontDelay + backDelay))

			_, ok := session.Current()
			Expect(ok).To(BeFalse())
			Expect(session.AutoPlaying()).To(BeFalse())
			Expect(session.Missed()).To(BeEmpty())
			Expect(fake.Pending()).To(Equal(0))
		})

		It("should stop when the card is flipped by hand", func() {
			Expect(session.StartAutoPlay()).To(BeTrue())
			fake.Advance(time.Second)

			session.Flip()

			Expect(session.AutoPlaying()).To(BeFalse())
			Expect(session.Phase()).To(Equal(swipe.Back))
			fake.Advance(time.Minute)
			card, _ := session.Current()
			Expect(card.ID).To(Equal("c0"))
		})

		It("should re-arm on the next card after a manual decision", func() {
			Expect(session.StartAutoPlay()).To(BeTrue())
			fake.Advance(frontDelay)
			Expect(session.Decide(swipe.Bad)).To(Succeed())

			fake.Advance(frontDelay - time.Millisecond)
			Expect(session.Phase()).To(Equal(swipe.Front))
			fake.Advance(time.Millisecond)
			Expect(session.Phase()).To(Equal(swipe.Back))

			card, _ := session.Current()
			Expect(card.ID).To(Equal("c1"))
		})

		It("should be cancelled by changing the card set", func() {
			for _, change := range []func(){
				session.Shuffle,
				func() { session.Filter("a") },
				session.RestartAll,
				session.RestartMissed,
				func() { session.Start(cards("x", "y")) },
				session.Close,
			} {
				session.Start(cards("Cell", "Atom"))
				Expect(session.StartAutoPlay()).To(BeTrue())
				change()

				Expect(session.AutoPlaying()).To(BeFalse())
				pos, _ := session.Progress()
				fake.Advance(time.Minute)
				after, _ := session.Progress()
				Expect(after).To(Equal(pos))
			}
		})

		It("should refuse to start on an empty queue", func() {
			session.Start(nil)
			Expect(session.StartAutoPlay()).To(BeFalse())
		})
	})

	Context("directions", func() {
		It("should round trip as text", func() {
			var d swipe.Direction
			Expect(d.UnmarshalText([]byte("bad"))).To(Succeed())
			Expect(d).To(Equal(swipe.Bad))
			text, err := swipe.Good.MarshalText()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(text)).To(Equal("good"))
			Expect(d.UnmarshalText([]byte("sideways"))).NotTo(Succeed())
		})
	})
})
