package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

func (a *app) batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Local tools for batch request and result documents",
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Summarise a request document, or a result document with --results",
				ArgsUsage: "<document.jsonl>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "results", Usage: "treat the file as a downloaded result document"},
					&cli.StringFlag{Name: "document", Usage: "request document to check result keys against"},
					&cli.BoolFlag{Name: "write", Usage: "write one output file per result under --output-dir"},
				},
				Action: a.batchInspect,
			},
		},
	}
}

func (a *app) batchInspect(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return &model.ConfigurationError{Setting: "document", Message: "document argument is required"}
	}
	f, err := os.Open(path)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	defer func() { _ = f.Close() }()

	if !cmd.Bool("results") {
		return inspectRequests(os.Stdout, f)
	}

	records, diagnostics, err := batch.ParseResults(f)
	if err != nil {
		return err
	}
	a.metrics.ObserveRecords(len(records), len(diagnostics))

	for _, record := range records {
		text, _ := record.Text()
		_, _ = fmt.Fprintf(os.Stdout, "%s\tline %d\t%s\n", record.Key, record.Line, preview(text))
	}
	for _, diag := range diagnostics {
		_, _ = fmt.Fprintf(os.Stdout, "skipped\t%v\n", diag)
	}

	if docPath := cmd.String("document"); docPath != "" {
		keys, err := documentKeys(docPath)
		if err != nil {
			return err
		}
		report := batch.VerifyKeys(keys, records, diagnostics)
		if !report.OK() {
			_, _ = fmt.Fprintf(os.Stdout, "missing=%s unexpected=%s duplicates=%s\n",
				strings.Join(report.Missing, ","), strings.Join(report.Unexpected, ","), strings.Join(report.Duplicates, ","))
		}
	}

	if cmd.Bool("write") {
		paths, err := batch.WriteOutputs(a.cfg.Output.Dir, records)
		for _, p := range paths {
			fmt.Println(p)
		}
		return err
	}
	return nil
}

func inspectRequests(w io.Writer, r io.Reader) error {
	records, err := batch.DecodeDocument(r)
	if err != nil {
		return err
	}
	for i, record := range records {
		key := record.Key
		if key == "" {
			key = batch.PositionalKey(i)
		}
		files := make([]string, 0)
		for _, ref := range record.FileRefs() {
			files = append(files, ref.FileURI)
		}
		_, _ = fmt.Fprintf(w, "%s\tfiles=%s\tprompt=%s\n", key, strings.Join(files, ","), preview(record.Prompt()))
	}
	_, _ = fmt.Fprintf(w, "%d request(s)\n", len(records))
	return nil
}

func documentKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	defer func() { _ = f.Close() }()
	records, err := batch.DecodeDocument(f)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for i, record := range records {
		key := record.Key
		if key == "" {
			key = batch.PositionalKey(i)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return text
}
