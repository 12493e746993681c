package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/dataset"
	"github.com/born-ml/zebrago/internal/model"
	"github.com/born-ml/zebrago/internal/record"
	"github.com/born-ml/zebrago/internal/render"
	"github.com/born-ml/zebrago/internal/tfrecord"
)

func runInspect(_ context.Context, args []string, stdout io.Writer, logger *log.Logger) error {
	fs := newFlagSet("inspect", stdout)
	path := fs.String("records", "", "Record file to read")
	index := fs.Int("index", 0, "Zero-based record number")
	modelPath := fs.String("model", "", "Optional model used to predict the record")
	device := fs.String("device", config.DeviceCPU, "cpu or webgpu")
	top := fs.Int("top", 10, "Number of predicted moves to show")
	svgPath := fs.String("svg", "", "Write the position as SVG to this file")
	compression := fs.String("compression", "ZLIB", "Record compression: ZLIB or NONE")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: -records is required", config.ErrInvalid)
	}
	if *index < 0 {
		return fmt.Errorf("%w: -index must not be negative", config.ErrInvalid)
	}
	comp, err := tfrecord.ParseCompression(*compression)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	samples, err := dataset.ReadSamples(*path, comp, *index+1)
	if err != nil {
		return err
	}
	if len(samples) <= *index {
		return fmt.Errorf("%s holds %d records, no record %d", *path, len(samples), *index)
	}
	s := samples[*index]

	x, y := record.MoveXY(int(s.Next))
	fmt.Fprintf(stdout, "Note: %s\n", s.Note)
	fmt.Fprintf(stdout, "Golden move: %d (x=%d, y=%d)\n", s.Next, x, y)
	fmt.Fprintf(stdout, "Outcome: %g\n", s.Outcome)

	img := render.FromSample(s)
	if *modelPath != "" {
		moves, value, err := predictSample(s, *modelPath, *device, *top, logger)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Predictions:")
		for i, mv := range moves {
			mx, my := mv.XY()
			fmt.Fprintf(stdout, "%3d. x=%-2d y=%-2d %.4f\n", i+1, mx, my, mv.Score)
			img.AddSquare(mx, my, i+1)
		}
		fmt.Fprintf(stdout, "Value: %.4f\n", value)
	}

	if *svgPath != "" {
		if err := writeSVG(*svgPath, img); err != nil {
			return err
		}
		logger.Printf("wrote %s", *svgPath)
	}
	return nil
}

func predictSample(s *record.Sample, path, device string, top int, logger *log.Logger) ([]model.Move, float32, error) {
	scorer, release, err := openScorer(device, path, logger)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	pred, err := scorer.Score(s.Features, 1)
	if err != nil {
		return nil, 0, err
	}
	return model.TopK(pred.Policy[0], top), pred.Value[0], nil
}

func writeSVG(path string, img *render.Board) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return img.Draw(f)
}
