package controller

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/config"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

var _ = Describe("Controller", func() {
	var (
		ctx       context.Context
		sender    *fakeSender
		scheduler *fakeScheduler
		recorder  *fakeRecorder
		spec      v1alpha1.ControllerSpec
	)

	newController := func() *Controller {
		c, err := New(ctx, spec, sender, scheduler, WithRecorders(recorder), WithInstanceID("test"))
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = logging.NewTestLoggerIntoContext(context.Background())
		sender = &fakeSender{}
		scheduler = newFakeScheduler()
		recorder = &fakeRecorder{}
		spec = v1alpha1.ControllerSpec{
			TotalChannels:       100,
			DynamicAllocation:   true,
			PollIntervalSeconds: 2,
			Topology:            v1alpha1.TopologySpec{Macro: 5, Micro: 3, Pico: 2},
		}
	})

	Context("When created", func() {
		It("should start waiting with the equal baseline", func() {
			spec.TotalChannels = 13
			c := newController()
			Expect(c.State()).To(Equal(Waiting))
			Expect(c.Round()).To(BeZero())
			Expect(c.RepliesExpected()).To(BeZero())
			Expect(c.Channels()).To(Equal([]int{2, 2, 2, 1, 1, 1, 1, 1, 1, 1}))
			Expect(sender.sent).To(BeEmpty())
		})

		It("should schedule the first timer one interval after start", func() {
			c := newController()
			c.Start(ctx)
			Expect(scheduler.scheduled).To(Equal([]time.Duration{2 * time.Second}))
		})

		It("should refuse an invalid configuration", func() {
			spec.TotalChannels = 0
			spec.PollIntervalSeconds = 0
			spec.Topology = v1alpha1.TopologySpec{}
			c, err := New(ctx, spec, sender, scheduler)
			Expect(c).To(BeNil())
			var cfgErr *config.ConfigError
			Expect(err).To(BeAssignableToTypeOf(cfgErr))
			Expect(err.(*config.ConfigError).Errs).To(HaveLen(3))
		})

		It("should require a sender and a scheduler", func() {
			_, err := New(ctx, spec, nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("sender"))
			Expect(err.Error()).To(ContainSubstring("scheduler"))
		})
	})

	Context("When the timer fires", func() {
		It("should poll every cell in global index order", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())

			Expect(c.State()).To(Equal(Polling))
			Expect(c.Round()).To(Equal(int64(1)))
			Expect(c.RepliesExpected()).To(Equal(10))
			Expect(sender.sent).To(HaveLen(10))
			for i, env := range sender.sent {
				Expect(env.From).To(Equal(protocol.ControllerEndpoint))
				Expect(env.Msg).To(Equal(protocol.PollRequest{}))
				Expect(env.To.Cell).To(Equal(c.Topology().Cells()[i]))
			}
			Expect(sender.sent[0].To.String()).To(Equal("macro[0]"))
			Expect(sender.sent[5].To.String()).To(Equal("micro[0]"))
			Expect(sender.sent[9].To.String()).To(Equal("pico[1]"))
			Expect(recorder.polls).To(Equal([]int64{1}))
		})

		It("should ignore a timer while a round is in progress", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			Expect(c.OnMessage(ctx, protocol.CellEndpoint(c.Topology().Cells()[0]), protocol.LoadReply{Load: 1})).To(Succeed())

			err := c.OnTimer(ctx)
			Expect(err).To(MatchError(protocol.ErrProtocolViolation))
			Expect(protocol.ReasonOf(err)).To(Equal(protocol.ReasonTimerWhilePolling))
			Expect(c.Round()).To(Equal(int64(1)))
			Expect(c.RepliesExpected()).To(Equal(9))
			Expect(sender.sent).To(HaveLen(10))
		})
	})

	Context("When replies arrive", func() {
		It("Scenario A: equal loads split the pool evenly", func() {
			c := newController()
			Expect(runRound(ctx, c, repeat(10, 10))).To(Succeed())
			Expect(c.Channels()).To(Equal(repeat(10, 10)))
		})

		It("Scenario B: zero total load falls back to the equal baseline", func() {
			spec.TotalChannels = 10
			c := newController()
			Expect(runRound(ctx, c, repeat(0, 10))).To(Succeed())
			Expect(c.Channels()).To(Equal(repeat(1, 10)))
		})

		It("Scenario C: the deficit goes to the lowest index on tied remainders", func() {
			spec.TotalChannels = 7
			spec.Topology = v1alpha1.TopologySpec{Macro: 1, Micro: 1, Pico: 1}
			c := newController()
			Expect(runRound(ctx, c, []int{1, 1, 1})).To(Succeed())
			Expect(c.Channels()).To(Equal([]int{3, 2, 2}))
		})

		It("Scenario D: a reply after completion is discarded", func() {
			c := newController()
			Expect(runRound(ctx, c, repeat(3, 10))).To(Succeed())
			Expect(scheduler.scheduled).To(HaveLen(1))
			before := c.Status()

			err := c.OnMessage(ctx, protocol.CellEndpoint(c.Topology().Cells()[4]), protocol.LoadReply{Load: 50})
			Expect(err).To(MatchError(protocol.ErrProtocolViolation))
			Expect(protocol.ReasonOf(err)).To(Equal(protocol.ReasonReplyAfterCompletion))

			Expect(c.RepliesExpected()).To(BeZero())
			Expect(c.State()).To(Equal(Waiting))
			Expect(c.Status()).To(Equal(before))
			Expect(sender.sent).To(HaveLen(10))
			Expect(scheduler.scheduled).To(HaveLen(1))
			Expect(recorder.completed).To(HaveLen(1))
			Expect(recorder.violations).To(Equal([]protocol.ViolationReason{protocol.ReasonReplyAfterCompletion}))
		})

		It("should complete exactly once regardless of arrival order", func() {
			spec.TotalChannels = 10
			spec.Topology = v1alpha1.TopologySpec{Macro: 1, Micro: 1, Pico: 2}
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())

			cells := c.Topology().Cells()
			loads := []int{1, 2, 3, 4}
			for _, i := range []int{3, 1, 0, 2} {
				Expect(c.State()).To(Equal(Polling))
				Expect(c.OnMessage(ctx, protocol.CellEndpoint(cells[i]), protocol.LoadReply{Load: loads[i]})).To(Succeed())
			}
			Expect(c.State()).To(Equal(Waiting))
			Expect(c.Loads()).To(Equal(loads))
			Expect(c.Channels()).To(Equal([]int{1, 2, 3, 4}))
			Expect(recorder.replies).To(Equal([]int{3, 1, 0, 2}))
			Expect(recorder.completed).To(HaveLen(1))
			Expect(scheduler.scheduled).To(Equal([]time.Duration{2 * time.Second}))
		})

		It("should report the round duration from the scheduler clock", func() {
			spec.Topology = v1alpha1.TopologySpec{Macro: 1}
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			scheduler.now = scheduler.now.Add(30 * time.Millisecond)
			Expect(c.OnMessage(ctx, protocol.CellEndpoint(c.Topology().Cells()[0]), protocol.LoadReply{Load: 4})).To(Succeed())

			Expect(recorder.durations).To(Equal([]time.Duration{30 * time.Millisecond}))
			status := recorder.completed[0]
			Expect(status.Round).To(Equal(int64(1)))
			Expect(status.State).To(Equal(v1alpha1.StateWaiting))
			Expect(status.TotalLoad).To(Equal(4))
			Expect(status.LastRoundTime.Time).To(Equal(scheduler.now))
			Expect(status.Channels()).To(Equal([]int{100}))
		})

		It("should keep the baseline when dynamic allocation is disabled", func() {
			spec.DynamicAllocation = false
			spec.TotalChannels = 13
			c := newController()
			baseline := c.Channels()
			for round := 0; round < 3; round++ {
				Expect(runRound(ctx, c, []int{90, 0, 0, 0, 0, 0, 0, 0, 0, 1})).To(Succeed())
				Expect(c.Channels()).To(Equal(baseline))
			}
			Expect(c.Round()).To(Equal(int64(3)))
			Expect(c.Status().TotalLoad).To(Equal(91))
		})
	})

	Context("When a peer misbehaves", func() {
		It("should discard replies from unknown senders", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())

			outside := protocol.CellEndpoint(v1alpha1.CellRef{Tier: v1alpha1.TierPico, Index: 2})
			err := c.OnMessage(ctx, outside, protocol.LoadReply{Load: 1})
			Expect(protocol.ReasonOf(err)).To(Equal(protocol.ReasonUnknownSender))

			err = c.OnMessage(ctx, protocol.ControllerEndpoint, protocol.LoadReply{Load: 1})
			Expect(protocol.ReasonOf(err)).To(Equal(protocol.ReasonUnknownSender))
			Expect(c.RepliesExpected()).To(Equal(10))
		})

		It("should discard messages of unknown kind", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			from := protocol.CellEndpoint(c.Topology().Cells()[0])

			Expect(protocol.ReasonOf(c.OnMessage(ctx, from, protocol.PollRequest{}))).To(Equal(protocol.ReasonUnknownKind))
			Expect(protocol.ReasonOf(c.OnMessage(ctx, from, nil))).To(Equal(protocol.ReasonUnknownKind))
			Expect(c.RepliesExpected()).To(Equal(10))
		})

		It("should discard negative loads", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			from := protocol.CellEndpoint(c.Topology().Cells()[0])

			err := c.OnMessage(ctx, from, protocol.LoadReply{Load: -4})
			Expect(protocol.ReasonOf(err)).To(Equal(protocol.ReasonNegativeLoad))
			Expect(c.RepliesExpected()).To(Equal(10))
			Expect(c.Loads()[0]).To(BeZero())
		})

		It("should count a duplicate reply within a round and keep the later load", func() {
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			from := protocol.CellEndpoint(v1alpha1.CellRef{Tier: v1alpha1.TierMacro, Index: 0})

			Expect(c.OnMessage(ctx, from, protocol.LoadReply{Load: 3})).To(Succeed())
			Expect(c.OnMessage(ctx, from, protocol.LoadReply{Load: 7})).To(Succeed())
			Expect(c.RepliesExpected()).To(Equal(8))
			Expect(c.Loads()[0]).To(Equal(7))
			Expect(c.State()).To(Equal(Polling))
			Expect(recorder.violations).To(BeEmpty())
		})

		It("should accept replies sent by pointer", func() {
			spec.Topology = v1alpha1.TopologySpec{Pico: 1}
			c := newController()
			Expect(c.OnTimer(ctx)).To(Succeed())
			Expect(c.OnMessage(ctx, protocol.CellEndpoint(c.Topology().Cells()[0]), &protocol.LoadReply{Load: 2})).To(Succeed())
			Expect(c.State()).To(Equal(Waiting))
		})
	})

	Context("When reading state", func() {
		It("should return copies", func() {
			c := newController()
			channels := c.Channels()
			channels[0] = 1000
			loads := c.Loads()
			loads[0] = 1000
			Expect(c.Channels()[0]).To(Equal(10))
			Expect(c.Loads()[0]).To(BeZero())
		})
	})
})
