package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
	"github.com/a3tai/mcp-form-autofill/internal/overlay"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
)

func newDetectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Detect the fields of one or more documents and store them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.processor()
			if err != nil {
				return err
			}
			defer a.closeProcessor(p)

			out := cmd.OutOrStdout()
			for _, path := range args {
				layout, report, err := p.Process(cmd.Context(), a.cfg.ResolvePath(path))
				if err != nil {
					if pdferrors.IsFormatError(err) {
						a.logger.WithError(err).WithField("file", path).Error("Cannot read document")
					}
					return err
				}
				if asJSON {
					if err := writeJSON(out, detectOutput{Layout: layout, Report: report}); err != nil {
						return err
					}
					continue
				}
				printLayout(out, layout, report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the layout and report as JSON")
	return cmd
}

type detectOutput struct {
	Layout *form.DocumentLayout `json:"layout"`
	Report *pdferrors.Report    `json:"report"`
}

func printLayout(out io.Writer, layout *form.DocumentLayout, report *pdferrors.Report) {
	fmt.Fprintf(out, "Document %s (%s, %d pages)\n", layout.ID, layout.SourcePath, len(layout.Pages))
	fmt.Fprintf(out, "Type: %s (%.2f, %s)\n\n", layout.DocumentType, layout.DocumentTypeConfidence, layout.ClassificationMethod)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAGE\tTYPE\tX\tY\tW\tH\tMETHOD\tCONF\tCONTEXT")
	for _, f := range layout.Fields {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t%.2f\t%s\n",
			f.ID, f.PageIndex+1, f.FieldType, f.Rect.X, f.Rect.Y, f.Rect.Width, f.Rect.Height,
			f.Method, f.Confidence, f.Context)
	}
	tw.Flush()

	if report == nil {
		return
	}
	errs, notices := report.Count()
	if errs+notices > 0 {
		fmt.Fprintf(out, "\n%s\n", report.Summary())
	}
}

func newClassifyCmd(a *app) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "classify [FILE]",
		Short: "Classify a document or a piece of text by document type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && text == "" {
				return fmt.Errorf("a file or --text is required")
			}
			p, err := a.processor()
			if err != nil {
				return err
			}
			defer a.closeProcessor(p)

			var cls intelligence.DocumentClassification
			if len(args) == 1 {
				if cls, err = p.ClassifyFile(cmd.Context(), a.cfg.ResolvePath(args[0])); err != nil {
					return err
				}
			} else {
				cls = p.ClassifyDocument(text)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\t%.2f\t%s\n", cls.Type, cls.Confidence, cls.Method)
			if cls.FallbackUsed() && cls.FallbackReason != "" {
				fmt.Fprintf(out, "fallback: %s\n", cls.FallbackReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Classify this text instead of a file")
	return cmd
}

func newFillCmd(a *app) *cobra.Command {
	var (
		set        map[string]string
		valuesFile string
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "fill DOCUMENT_ID|FILE",
		Short: "Write values into a stored document, or detect and fill a file in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(valuesFile)
			if err != nil {
				return err
			}
			for k, v := range set {
				values[k] = v
			}

			p, err := a.processor()
			if err != nil {
				return err
			}
			defer a.closeProcessor(p)

			if outPath != "" {
				outPath = a.cfg.ResolvePath(outPath)
			}

			var manifest *overlay.Manifest
			if path := a.cfg.ResolvePath(args[0]); fileExists(path) {
				layout, _, err := p.Process(cmd.Context(), path)
				if err != nil {
					return err
				}
				manifest, err = p.FillLayout(cmd.Context(), layout, values, outPath)
				if err != nil {
					return err
				}
			} else {
				manifest, err = p.Fill(cmd.Context(), args[0], values, outPath)
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), manifest)
		},
	}
	cmd.Flags().StringToStringVar(&set, "set", nil, "Field value as FIELD_ID=VALUE (repeatable)")
	cmd.Flags().StringVar(&valuesFile, "values", "", "YAML or JSON file mapping field ids to values")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default <name>_filled.<ext> next to the source)")
	return cmd
}

func readValues(path string) (overlay.Values, error) {
	values := overlay.Values{}
	if path == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse values %s: %w", path, err)
	}
	return values, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// sampleRecord is one training sample as written in a samples file
type sampleRecord struct {
	Text         string  `yaml:"text"`
	FieldType    string  `yaml:"field_type"`
	DocumentType string  `yaml:"document_type"`
	Context      string  `yaml:"context"`
	Confidence   float64 `yaml:"confidence"`
}

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train [SAMPLES_FILE]",
		Short: "Add labeled samples and retrain the classifier on everything stored",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var samples []intelligence.TrainingSample
			if len(args) == 1 {
				var err error
				if samples, err = readSamples(args[0]); err != nil {
					return err
				}
			}

			p, err := a.processor()
			if err != nil {
				return err
			}
			defer a.closeProcessor(p)

			result, err := p.Train(cmd.Context(), samples)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

// readSamples loads a YAML or JSON list of samples
func readSamples(path string) ([]intelligence.TrainingSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	var records []sampleRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse samples %s: %w", path, err)
	}
	samples := make([]intelligence.TrainingSample, 0, len(records))
	for _, r := range records {
		samples = append(samples, intelligence.TrainingSample{
			Text:         r.Text,
			FieldType:    form.FieldType(r.FieldType),
			DocumentType: intelligence.DocumentType(r.DocumentType),
			Context:      r.Context,
			Confidence:   r.Confidence,
		})
	}
	return samples, nil
}
