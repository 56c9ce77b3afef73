// Command gen_dataset writes a synthetic, balanced workout dataset in ARFF.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"fitlife/pipeline"
)

func main() {
	app := &cli.App{
		Name:  "gen_dataset",
		Usage: "generate synthetic workout activities for training",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rows", Aliases: []string{"n"}, Value: 400, Usage: "total examples, split evenly across the four activities"},
			&cli.Int64Flag{Name: "seed", Value: 123, Usage: "random seed"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "data/workout_activities.arff", Usage: "output ARFF path"},
		},
		Action: func(c *cli.Context) error {
			n, err := generate(c.String("out"), c.Int("rows"), c.Int64("seed"))
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d examples to %s\n", n, c.String("out"))
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// generate writes rows rounded down to a multiple of four and returns the count written.
func generate(path string, rows int, seed int64) (int, error) {
	perActivity := rows / 4
	if perActivity < 1 {
		return 0, errors.Errorf("need at least 4 rows, got %d", rows)
	}
	ds := pipeline.GenerateWorkouts(rand.New(rand.NewSource(seed)), perActivity)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := pipeline.WriteARFF(f, ds); err != nil {
		f.Close()
		return 0, err
	}
	return ds.Len(), f.Close()
}
