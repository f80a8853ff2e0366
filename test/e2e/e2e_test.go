/*
Copyright 2025 The hcran Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
)

var _ = Describe("rrh-controller simulate", func() {
	It("keeps equal loads on the equal split", func() {
		cfg := writeFile("rrh.yaml", `
totalChannels: 7
dynamicAllocation: true
pollIntervalSeconds: 1
topology:
  macro: 1
  micro: 1
  pico: 1
agents:
  default:
    initialLoad: 1
    maxGrowth: 0
`)
		out := simulate("--config", cfg, "--duration", "3500ms")

		Expect(len(out.rounds)).To(BeNumerically(">=", 2))
		for _, r := range out.rounds {
			Expect(r.Loads).To(Equal([]int{1, 1, 1}))
			Expect(r.TotalLoad).To(Equal(3))
			Expect(r.Channels).To(Equal([]int{3, 2, 2}))
		}
		Expect(out.final.Channels).To(Equal([]int{3, 2, 2}))
		Expect(out.final.Round).To(Equal(out.rounds[len(out.rounds)-1].Round))
	})

	It("gives the tied remainder to the lowest global index", func() {
		agents := writeFile("agents.yaml", `
default:
  initialLoad: 1
  maxGrowth: 0
macro[0]:
  initialLoad: 2
`)
		out := simulate(
			"--total-channels", "10",
			"--macro", "1", "--micro", "1", "--pico", "1",
			"--agents-file", agents,
			"--duration", "2500ms",
		)

		Expect(out.rounds).NotTo(BeEmpty())
		Expect(out.rounds[0].Loads).To(Equal([]int{2, 1, 1}))
		Expect(out.rounds[0].Channels).To(Equal([]int{5, 3, 2}))
	})

	It("never moves channels in static mode while loads grow", func() {
		out := simulate(
			"--total-channels", "10",
			"--dynamic-allocation=false",
			"--macro", "1", "--micro", "1", "--pico", "1",
			"--duration", "5s",
		)

		Expect(len(out.rounds)).To(BeNumerically(">=", 3))
		for _, r := range out.rounds {
			Expect(r.Channels).To(Equal([]int{4, 3, 3}))
		}
	})

	It("conserves the channel pool in every round with growing loads", func() {
		out := simulate(
			"--total-channels", "100",
			"--poll-interval-seconds", "0.5",
			"--duration", "10s",
		)

		Expect(len(out.rounds)).To(BeNumerically(">=", 10))
		for i, r := range out.rounds {
			Expect(r.Round).To(Equal(int64(i + 1)))
			Expect(r.Channels).To(HaveLen(10))
			Expect(sum(r.Channels)).To(Equal(100))
			Expect(sum(r.Loads)).To(Equal(r.TotalLoad))
		}
	})

	It("prints only the final allocation when quiet", func() {
		out := simulate("--quiet", "--duration", "3s")

		Expect(out.rounds).To(BeEmpty())
		Expect(out.final.Round).To(BeNumerically(">=", 1))
		Expect(sum(out.final.Channels)).To(Equal(100))
	})

	It("rejects an invalid configuration", func() {
		session := startController("simulate", "--total-channels", "0", "--pico", "0", "--micro", "0", "--macro", "0")
		Eventually(session, time.Minute).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("Error:"))
		Expect(string(session.Err.Contents())).To(And(
			ContainSubstring("totalChannels"),
			ContainSubstring("topology"),
		))
	})
})

var _ = Describe("rrh-controller run", func() {
	var (
		session *gexec.Session
		baseURL string
	)

	BeforeEach(func() {
		addr := freeAddress()
		baseURL = "http://" + addr
		session = startController("run",
			"--metrics-bind-address", addr,
			"--poll-interval-seconds", "0.2",
			"--total-channels", "12",
			"--macro", "2", "--micro", "1", "--pico", "1",
		)
		DeferCleanup(func() {
			session.Terminate()
			Eventually(session, 30*time.Second).Should(gexec.Exit(0))
		})

		Eventually(func(g Gomega) {
			resp, err := http.Get(baseURL + "/healthz")
			g.Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			g.Expect(resp.StatusCode).To(Equal(http.StatusOK))
		}, 30*time.Second, 200*time.Millisecond).Should(Succeed())
	})

	It("completes rounds and reports them on /status", func() {
		Eventually(func(g Gomega) {
			resp, err := http.Get(baseURL + "/status")
			g.Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			g.Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var status v1alpha1.AllocationStatus
			g.Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
			g.Expect(status.Round).To(BeNumerically(">=", 2))
			g.Expect(status.TotalChannels).To(Equal(12))
			g.Expect(status.Cells).To(HaveLen(4))
			g.Expect(sum(status.Channels())).To(Equal(12))
		}, 30*time.Second, 250*time.Millisecond).Should(Succeed())
	})

	It("exports round metrics on /metrics", func() {
		Eventually(func(g Gomega) {
			resp, err := http.Get(baseURL + "/metrics")
			g.Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			body, err := io.ReadAll(resp.Body)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(string(body)).To(And(
				ContainSubstring("rrh_rounds_total"),
				ContainSubstring(`rrh_cell_channels{cell="macro[0]",tier="macro"}`),
				ContainSubstring("rrh_round_duration_seconds_bucket"),
			))
		}, 30*time.Second, 250*time.Millisecond).Should(Succeed())
	})
})
