//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/opscart/k8s-zero-scaler/pkg/cluster"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// testNamespace holds the sample workloads for live cluster runs
func testNamespace() string {
	if ns := os.Getenv("E2E_NAMESPACE"); ns != "" {
		return ns
	}
	return "zero-scaler-test"
}

var _ = Describe("Live cluster", Label("cluster"), func() {
	var clients *cluster.Clients

	BeforeEach(func() {
		var err error
		clients, err = cluster.NewClients("")
		if err != nil {
			Skip("no kubeconfig: " + err.Error())
		}
		if _, err := clients.ServerVersion(); err != nil {
			Skip("cluster not reachable: " + err.Error())
		}
	})

	It("lists nodes", func() {
		nodes, err := clients.Kube.CoreV1().Nodes().List(context.Background(), metav1.ListOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes.Items).NotTo(BeEmpty())
	})

	It("builds the workload inventory for the test namespace", func() {
		ctx := context.Background()
		if _, err := clients.Kube.CoreV1().Namespaces().Get(ctx, testNamespace(), metav1.GetOptions{}); err != nil {
			Skip("namespace " + testNamespace() + " not found")
		}

		inv := cluster.NewInventory(clients.Kube, clients.Metrics, "e2e", zap.NewNop())
		workloads, err := inv.ListWorkloads(ctx, testNamespace())
		Expect(err).NotTo(HaveOccurred())
		for _, w := range workloads {
			Expect(w.Namespace).To(Equal(testNamespace()))
			Expect(w.Kind).To(BeElementOf(models.KindDeployment, models.KindStatefulSet))
		}
	})
})
