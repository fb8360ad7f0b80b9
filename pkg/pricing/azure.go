package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Azure Retail Prices API
const azurePricingAPI = "https://prices.azure.com/api/retail/prices"

// Reference shape used to split a VM price into per-core and per-GiB parts (Standard_D2s_v3)
const (
	azureReferenceSKU    = "D2s v3"
	azureReferenceCores  = 2.0
	azureReferenceMemGiB = 8.0
	azureCPUHourly       = 0.048
	azureMemoryHourly    = 0.006
)

// AzureProvider implements Azure AKS pricing
type AzureProvider struct {
	region     string
	baseURL    string
	cache      *PriceCache
	httpClient *http.Client
	clock      clock.PassiveClock
}

type azurePriceResponse struct {
	Items []azurePriceItem `json:"Items"`
}

type azurePriceItem struct {
	CurrencyCode  string  `json:"currencyCode"`
	RetailPrice   float64 `json:"retailPrice"`
	UnitOfMeasure string  `json:"unitOfMeasure"`
	ServiceName   string  `json:"serviceName"`
	ProductName   string  `json:"productName"`
	SkuName       string  `json:"skuName"`
	ArmRegionName string  `json:"armRegionName"`
}

func NewAzureProvider(region string) *AzureProvider {
	return &AzureProvider{
		region:  region,
		baseURL: azurePricingAPI,
		cache:   NewPriceCache(24*time.Hour, nil),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock: clock.RealClock{},
	}
}

// WithBaseURL points the provider at a different retail prices endpoint
func (a *AzureProvider) WithBaseURL(baseURL string) *AzureProvider {
	a.baseURL = baseURL
	return a
}

func (a *AzureProvider) Name() string {
	return "azure"
}

func (a *AzureProvider) Region() string {
	return a.region
}

func (a *AzureProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = a.region
	}
	cacheKey := fmt.Sprintf("azure-%s-%s", region, nodeType)
	if cached := a.cache.Get(cacheKey); cached != nil {
		return cached, nil
	}

	costInfo, err := a.fetchAzurePricing(ctx, region)
	if err != nil {
		// Fall back to list prices; do not cache so the next call retries
		return a.getDefaultCostInfo(region), nil
	}

	a.cache.Set(cacheKey, costInfo)
	return costInfo, nil
}

func (a *AzureProvider) fetchAzurePricing(ctx context.Context, region string) (*models.CostInfo, error) {
	filter := fmt.Sprintf("serviceName eq 'Virtual Machines' and armRegionName eq '%s' and priceType eq 'Consumption' and skuName eq '%s'", region, azureReferenceSKU)
	reqURL := fmt.Sprintf("%s?$filter=%s", a.baseURL, url.QueryEscape(filter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure pricing API returned status %d", resp.StatusCode)
	}

	var priceResp azurePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return nil, err
	}

	return a.calculateAveragePricing(region, priceResp.Items)
}

// calculateAveragePricing averages hourly Linux prices for the reference SKU and splits
// the result into core and GiB parts using the list price ratio
func (a *AzureProvider) calculateAveragePricing(region string, items []azurePriceItem) (*models.CostInfo, error) {
	var sum float64
	var count int
	currency := "USD"
	for _, item := range items {
		if item.UnitOfMeasure != "1 Hour" || item.RetailPrice <= 0 {
			continue
		}
		name := strings.ToLower(item.SkuName + " " + item.ProductName)
		if strings.Contains(name, "spot") || strings.Contains(name, "low priority") || strings.Contains(name, "windows") {
			continue
		}
		sum += item.RetailPrice
		count++
		if item.CurrencyCode != "" {
			currency = item.CurrencyCode
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("no usable hourly prices for %s in %s", azureReferenceSKU, region)
	}

	vmHourly := sum / float64(count)
	listHourly := azureReferenceCores*azureCPUHourly + azureReferenceMemGiB*azureMemoryHourly
	scale := vmHourly / listHourly

	return &models.CostInfo{
		Provider:            "azure",
		Region:              region,
		CPUCostPerCoreHour:  azureCPUHourly * scale,
		MemoryCostPerGBHour: azureMemoryHourly * scale,
		Currency:            currency,
		LastUpdated:         a.clock.Now(),
	}, nil
}

func (a *AzureProvider) getDefaultCostInfo(region string) *models.CostInfo {
	return &models.CostInfo{
		Provider:            "azure",
		Region:              region,
		CPUCostPerCoreHour:  azureCPUHourly,
		MemoryCostPerGBHour: azureMemoryHourly,
		Currency:            "USD",
		LastUpdated:         a.clock.Now(),
	}
}
