package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile    string
	kubeconfig    string
	namespace     string
	allNamespaces bool
	outputFormat  string
	verbose       bool
	devLogs       bool
	fixturePath   string
	clusterID     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zero-scaler",
		Short: "Scale idle Kubernetes workloads to zero pods, safely",
		Long: `Classifies observed traffic into health checks and business requests, scores how
confidently each workload is idle, gates scale-downs through a risk policy and monitors
every scaled workload so it can be restored automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (YAML); environment variables take precedence")
	pf.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (in-cluster or ~/.kube/config when empty)")
	pf.StringVarP(&namespace, "namespace", "n", "", "Namespace to analyze")
	pf.BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Analyze all namespaces")
	pf.StringVarP(&outputFormat, "output", "o", "", "Output format: text, json, yaml, commands")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&devLogs, "dev-logs", false, "Human readable console logs")
	pf.StringVar(&fixturePath, "fixture", "", "Read traffic (and optionally workloads) from a JSON/YAML fixture instead of Prometheus")
	pf.StringVar(&clusterID, "cluster-id", "default", "Cluster identifier")

	rootCmd.AddCommand(
		newScanCmd(),
		newApplyCmd(),
		newRestoreCmd(),
		newHistoryCmd(),
		newSavingsCmd(),
		newAuditCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// targetNamespace resolves -n / -A into the namespace argument ("" means all)
func targetNamespace() (string, error) {
	if namespace == "" && !allNamespaces {
		return "", fmt.Errorf("either --namespace or --all-namespaces must be specified")
	}
	if allNamespaces {
		return "", nil
	}
	return namespace, nil
}
