package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fitlife/ml"
)

// samples are scored after training as a sanity check.
var samples = []ml.FeatureVector{
	{30, 5.2, 320},
	{45, 15.0, 450},
	{50, 0, 380},
}

func renderSummary(w io.Writer, ds *ml.Dataset, model *ml.Model, report *ml.EvaluationReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Model summary")
	t.AppendRows([]table.Row{
		{"Examples", ds.Len()},
		{"Features", fmt.Sprint(ds.Schema.FeatureNames())},
		{"Tree nodes", model.Size()},
		{"Leaves", model.LeafCount()},
		{"Depth", model.Depth()},
		{"Folds", report.Folds},
		{"Seed", report.Seed},
		{"Correctly classified", fmt.Sprintf("%d (%.2f%%)", report.Correct, 100*report.Accuracy)},
		{"Incorrectly classified", fmt.Sprintf("%d (%.2f%%)", report.Total-report.Correct, 100*(1-report.Accuracy))},
		{"Kappa", fmt.Sprintf("%.4f", report.Kappa)},
		{"Fold accuracy", fmt.Sprintf("%.4f ± %.4f", report.MeanFoldAccuracy, report.StdDevFoldAccuracy)},
	})
	t.Render()
}

func renderPerClass(w io.Writer, report *ml.EvaluationReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Detailed accuracy by class")
	t.AppendHeader(table.Row{"Class", "Precision", "Recall", "F1"})
	for _, label := range report.Labels {
		m := report.PerClass[label]
		t.AppendRow(table.Row{label, fmt.Sprintf("%.3f", m.Precision), fmt.Sprintf("%.3f", m.Recall), fmt.Sprintf("%.3f", m.F1)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func renderConfusion(w io.Writer, report *ml.EvaluationReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Confusion matrix (rows actual, columns predicted)")
	header := table.Row{""}
	for _, label := range report.Labels {
		header = append(header, label)
	}
	t.AppendHeader(header)
	for i, label := range report.Labels {
		row := table.Row{label}
		for _, c := range report.Confusion[i] {
			row = append(row, c)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// renderSamples scores the sample workouts when the model uses the workout features.
func renderSamples(w io.Writer, model *ml.Model) error {
	if model.Schema().FeatureCount() != len(samples[0]) {
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Sample predictions")
	header := table.Row{}
	for _, name := range model.Schema().FeatureNames() {
		header = append(header, name)
	}
	t.AppendHeader(append(header, "Predicted", "Confidence"))
	for _, v := range samples {
		res, err := model.Predict(v)
		if err != nil {
			return err
		}
		row := table.Row{}
		for _, f := range v {
			row = append(row, f)
		}
		t.AppendRow(append(row, res.Label, fmt.Sprintf("%.2f%%", 100*res.Confidence)))
	}
	t.Render()
	return nil
}
