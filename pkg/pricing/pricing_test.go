package pricing

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	testclock "k8s.io/utils/clock/testing"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

func TestDefaultProvider(t *testing.T) {
	provider := NewDefaultProvider(0, 0)

	if provider.Name() != "default" {
		t.Errorf("Expected provider name 'default', got %s", provider.Name())
	}

	costInfo, err := provider.GetCostInfo(context.Background(), "", "")
	if err != nil {
		t.Fatalf("GetCostInfo failed: %v", err)
	}

	if costInfo.CPUCostPerCoreHour != 0.0315 {
		t.Errorf("Expected CPU cost 0.0315, got %.4f", costInfo.CPUCostPerCoreHour)
	}
	if costInfo.MemoryCostPerGBHour != 0.0041 {
		t.Errorf("Expected memory cost 0.0041, got %.4f", costInfo.MemoryCostPerGBHour)
	}

	custom, _ := NewDefaultProvider(0.05, 0.01).GetCostInfo(context.Background(), "", "")
	if custom.CPUCostPerCoreHour != 0.05 || custom.MemoryCostPerGBHour != 0.01 {
		t.Errorf("Expected custom prices, got %+v", custom)
	}
}

func TestAzureProviderParsesRetailPrices(t *testing.T) {
	body, err := os.ReadFile("testdata/azure_retail_eastus.json")
	if err != nil {
		t.Fatalf("Failed to load recording: %v", err)
	}

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("$filter") == "" {
			t.Errorf("Expected $filter query parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer server.Close()

	provider := NewAzureProvider("eastus").WithBaseURL(server.URL)

	costInfo, err := provider.GetCostInfo(context.Background(), "eastus", "")
	if err != nil {
		t.Fatalf("GetCostInfo failed: %v", err)
	}

	// Spot and Windows rows are ignored: mean(0.096, 0.192) = 0.144, exactly the list price
	if math.Abs(costInfo.CPUCostPerCoreHour-0.048) > 1e-9 {
		t.Errorf("Expected CPU cost 0.048, got %.6f", costInfo.CPUCostPerCoreHour)
	}
	if math.Abs(costInfo.MemoryCostPerGBHour-0.006) > 1e-9 {
		t.Errorf("Expected memory cost 0.006, got %.6f", costInfo.MemoryCostPerGBHour)
	}

	// served from cache
	if _, err := provider.GetCostInfo(context.Background(), "eastus", ""); err != nil {
		t.Fatalf("GetCostInfo failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("Expected 1 API request, got %d", requests)
	}
}

func TestAzureProviderFallsBackOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewAzureProvider("westeurope").WithBaseURL(server.URL)
	costInfo, err := provider.GetCostInfo(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Expected fallback pricing, got error: %v", err)
	}
	if costInfo.CPUCostPerCoreHour != 0.048 || costInfo.Region != "westeurope" {
		t.Errorf("Unexpected fallback pricing: %+v", costInfo)
	}
}

func TestPriceCache(t *testing.T) {
	clk := testclock.NewFakePassiveClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewPriceCache(time.Hour, clk)

	if cache.Get("test-key") != nil {
		t.Error("Expected nil for non-existent key")
	}

	cache.Set("test-key", &models.CostInfo{Provider: "test", CPUCostPerCoreHour: 0.1})

	result := cache.Get("test-key")
	if result == nil {
		t.Fatal("Expected cached value, got nil")
	}
	if result.CPUCostPerCoreHour != 0.1 {
		t.Errorf("Expected CPU cost 0.1, got %.2f", result.CPUCostPerCoreHour)
	}

	clk.SetTime(clk.Now().Add(time.Hour))
	if cache.Get("test-key") != nil {
		t.Error("Expected nil for expired cache entry")
	}

	cache.Set("other", &models.CostInfo{})
	cache.Clear()
	if cache.Get("other") != nil {
		t.Error("Expected empty cache after Clear")
	}
}

func TestProviderPriceComparison(t *testing.T) {
	ctx := context.Background()
	azure, _ := NewAzureProvider("eastus").WithBaseURL("http://127.0.0.1:0").GetCostInfo(ctx, "", "")
	aws, _ := NewAWSProvider("us-east-1").GetCostInfo(ctx, "", "")
	gcp, _ := NewGCPProvider("us-central1").GetCostInfo(ctx, "", "")

	if gcp.CPUCostPerCoreHour >= azure.CPUCostPerCoreHour {
		t.Errorf("Expected GCP (%.4f) < Azure (%.4f)", gcp.CPUCostPerCoreHour, azure.CPUCostPerCoreHour)
	}
	if aws.Region != "us-east-1" || gcp.Region != "us-central1" {
		t.Errorf("Expected provider regions to be carried through")
	}

	for _, p := range []*models.CostInfo{azure, aws, gcp} {
		if p.CPUCostPerCoreHour < 0.01 || p.CPUCostPerCoreHour > 0.2 {
			t.Errorf("Provider %s has unreasonable CPU cost: %.4f", p.Provider, p.CPUCostPerCoreHour)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name       string
		node       *corev1.Node
		wantCloud  string
		wantRegion string
	}{
		{
			name: "aws provider id",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n1", Labels: map[string]string{"topology.kubernetes.io/region": "eu-west-1"}},
				Spec:       corev1.NodeSpec{ProviderID: "aws:///eu-west-1a/i-0abc"},
			},
			wantCloud:  "aws",
			wantRegion: "eu-west-1",
		},
		{
			name: "gke node pool label",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n1", Labels: map[string]string{"cloud.google.com/gke-nodepool": "default-pool"}},
			},
			wantCloud:  "gcp",
			wantRegion: "us-central1",
		},
		{
			name: "aks cluster label",
			node: &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "n1", Labels: map[string]string{
					"kubernetes.azure.com/cluster":             "mc_rg",
					"failure-domain.beta.kubernetes.io/region": "westus2",
				}},
			},
			wantCloud:  "azure",
			wantRegion: "westus2",
		},
		{
			name:       "kind node",
			node:       &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "kind-control-plane"}},
			wantCloud:  "default",
			wantRegion: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientset := fake.NewSimpleClientset(tt.node)
			cloud, region, err := DetectProvider(context.Background(), clientset)
			if err != nil {
				t.Fatalf("DetectProvider failed: %v", err)
			}
			if cloud != tt.wantCloud || region != tt.wantRegion {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantCloud, tt.wantRegion, cloud, region)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, nil, &Config{Provider: "gcp", Region: "europe-west1"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "gcp" || p.Region() != "europe-west1" {
		t.Errorf("Expected gcp/europe-west1, got %s/%s", p.Name(), p.Region())
	}

	p, err = NewProvider(ctx, nil, &Config{})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.Name() != "default" {
		t.Errorf("Expected default provider without a cluster, got %s", p.Name())
	}

	if _, err := NewProvider(ctx, nil, &Config{Provider: "oracle"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
