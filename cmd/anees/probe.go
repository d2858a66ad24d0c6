package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/anees/internal/assessment"
)

// defaultScript walks a full assessment: greeting, feeling, ready, start, five
// choices, five open answers and the report turn.
var defaultScript = []string{
	"",
	"a little tired but okay",
	"yes",
	"start",
	"A", "B", "C", "A", "B",
	"I have been sleeping badly",
	"work has been stressful",
	"I still enjoy walks",
	"I talk to my sister",
	"some days are heavier than others",
	"thanks",
}

type probeOptions struct {
	baseURL     string
	script      string
	turnTimeout time.Duration
	verbose     bool
}

var probeOpts probeOptions

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Replay a scripted assessment over the websocket API and report turn latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		script := defaultScript
		if strings.TrimSpace(probeOpts.script) != "" {
			script = strings.Split(probeOpts.script, "|")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		samples, err := runProbe(ctx, probeOpts, script, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		writeProbeSummary(cmd.OutOrStdout(), summarize(samples))
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeOpts.baseURL, "base-url", "http://127.0.0.1:8000", "Anees base URL")
	probeCmd.Flags().StringVar(&probeOpts.script, "script", "", "messages separated by '|' (default: a full assessment)")
	probeCmd.Flags().DurationVar(&probeOpts.turnTimeout, "turn-timeout", 60*time.Second, "timeout waiting for each response frame")
	probeCmd.Flags().BoolVar(&probeOpts.verbose, "trace", false, "print every turn")
}

type probeSample struct {
	Phase   string
	Latency time.Duration
}

func runProbe(ctx context.Context, opts probeOptions, script []string, out io.Writer) ([]probeSample, error) {
	wsURL, err := chatWSURL(opts.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	timeout := opts.turnTimeout
	if timeout < time.Second {
		timeout = time.Second
	}

	samples := make([]probeSample, 0, len(script))
	for i, msg := range script {
		started := time.Now()
		if err := conn.WriteJSON(map[string]string{"message": msg}); err != nil {
			return samples, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		var resp assessment.Response
		if err := conn.ReadJSON(&resp); err != nil {
			return samples, fmt.Errorf("turn %d await response: %w", i+1, err)
		}
		elapsed := time.Since(started)

		phase := string(resp.Phase)
		if phase == "" {
			phase = "unset"
		}
		samples = append(samples, probeSample{Phase: phase, Latency: elapsed})
		if opts.verbose {
			fmt.Fprintf(out, "probe: turn %d/%d phase=%s question=%d latency=%s\n", i+1, len(script), phase, resp.QuestionNumber, elapsed.Round(time.Millisecond))
		}
		if resp.IsFinished {
			break
		}
	}
	return samples, nil
}

func chatWSURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	return u.String(), nil
}

type phaseSummary struct {
	Phase string
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

// summarize groups samples by phase in first-seen order.
func summarize(samples []probeSample) []phaseSummary {
	var order []string
	byPhase := map[string][]time.Duration{}
	for _, s := range samples {
		if _, ok := byPhase[s.Phase]; !ok {
			order = append(order, s.Phase)
		}
		byPhase[s.Phase] = append(byPhase[s.Phase], s.Latency)
	}

	out := make([]phaseSummary, 0, len(order))
	for _, phase := range order {
		vals := byPhase[phase]
		sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
		out = append(out, phaseSummary{
			Phase: phase,
			Count: len(vals),
			P50:   percentile(vals, 0.50),
			P95:   percentile(vals, 0.95),
			Max:   vals[len(vals)-1],
		})
	}
	return out
}

// percentile uses nearest rank over sorted values.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func writeProbeSummary(w io.Writer, rows []phaseSummary) {
	fmt.Fprintf(w, "%-14s %5s %10s %10s %10s\n", "phase", "turns", "p50", "p95", "max")
	for _, r := range rows {
		fmt.Fprintf(w, "%-14s %5d %10s %10s %10s\n", r.Phase, r.Count,
			r.P50.Round(time.Millisecond), r.P95.Round(time.Millisecond), r.Max.Round(time.Millisecond))
	}
}
