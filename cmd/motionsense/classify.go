package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"motionsense/internal/motion"
	"motionsense/internal/source"
)

type classifiedEvent struct {
	Index int
	Kind  motion.Kind
}

type classifySummary struct {
	Samples int
	Dropped int
	Events  []classifiedEvent
	Moving  bool
}

// classifySamples runs one classifier over samples in order.
// Event indexes are zero-based sample positions.
func classifySamples(samples []motion.Sample, cfg motion.Config) classifySummary {
	c := motion.NewClassifier(cfg)
	s := classifySummary{Samples: len(samples)}
	for i, x := range samples {
		if !x.Valid() {
			s.Dropped++
		}
		if ev, ok := c.Ingest(x); ok {
			s.Events = append(s.Events, classifiedEvent{Index: i, Kind: ev.Kind})
		}
	}
	s.Moving = c.Moving()
	return s
}

func writeClassifySummary(w io.Writer, s classifySummary) {
	for _, ev := range s.Events {
		_, _ = fmt.Fprintf(w, "sample=%d %s\n", ev.Index, ev.Kind)
	}
	_, _ = fmt.Fprintf(w, "samples=%d dropped=%d events=%d moving=%v\n", s.Samples, s.Dropped, len(s.Events), s.Moving)
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>",
		Short: "Classify a recorded sample file and print transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			samples, err := source.ReadSamples(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			writeClassifySummary(cmd.OutOrStdout(), classifySamples(samples, motionConfig(cfg)))
			return nil
		},
	}
}
