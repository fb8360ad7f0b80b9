package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-zero-scaler/pkg/reporter"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

var (
	saveResults    bool
	generateReport bool
	reportFormat   string
	reportOutput   string
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Analyze workloads and recommend scale-to-zero candidates (dry run)",
		Long: `Runs one analysis cycle: classifies traffic, scores idle confidence, assesses safety and
prices each candidate. Nothing is changed in the cluster.`,
		RunE: runScan,
	}

	cmd.Flags().BoolVar(&saveResults, "save", false, "Persist confidence, assessments and recommendations to storage")
	cmd.Flags().BoolVar(&generateReport, "generate-report", false, "Generate a cost report file")
	cmd.Flags().StringVar(&reportFormat, "report-format", "html", "Report format: html, markdown, csv")
	cmd.Flags().StringVar(&reportOutput, "report-output", "", "Report file (default reports/zero-scaler-<namespace>-<timestamp>.<ext>)")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	ns, err := targetNamespace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, "scan", setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := a.output()
	if err != nil {
		return err
	}

	report, err := a.scanner.Scan(ctx, ns)
	if err != nil {
		return err
	}
	a.observeScan(ctx, report, saveResults)

	if err := handler.DisplayReport(ctx, report); err != nil {
		return err
	}

	if generateReport {
		path, err := writeReport(report, ns)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "[INFO] %s report generated: %s\n", strings.ToUpper(reportFormat), path)
	}
	return nil
}

func writeReport(scan *scanner.Report, ns string) (string, error) {
	format, err := reporter.ParseFormat(reportFormat)
	if err != nil {
		return "", err
	}

	path := reportOutput
	if path == "" {
		nsName := ns
		if nsName == "" {
			nsName = "all-namespaces"
		}
		path = filepath.Join("reports", fmt.Sprintf("zero-scaler-%s-%s%s",
			nsName, time.Now().Format("20060102-150405"), format.Extension()))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := reporter.Write(reporter.Generate(scan, clusterID, time.Now()), format, file); err != nil {
		return "", err
	}
	return path, nil
}
