package mi

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/monitor/azquery"

	"github.com/frobelworks/dbops/internal/config"
)

// usedStorageMetric is the platform metric for consumed instance storage.
const usedStorageMetric = "storage_space_used_mb"

// metricGrain is the smallest grain the platform publishes this metric at.
const metricGrain = "PT5M"

// MetricsReader reads the used-storage metric of the target instance.
type MetricsReader struct {
	client     *azquery.MetricsClient
	resourceID string
	window     time.Duration
}

// NewMetricsReader creates a reader for the target instance, querying over
// the trailing window.
func NewMetricsReader(target config.InstanceConfig, window time.Duration, cred azcore.TokenCredential) (*MetricsReader, error) {
	client, err := azquery.NewMetricsClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating metrics client: %w", err)
	}
	return &MetricsReader{
		client:     client,
		resourceID: InstanceResourceID(target),
		window:     window,
	}, nil
}

// UsedStorageMB returns the most recent average of storage_space_used_mb
// over the trailing window.
func (r *MetricsReader) UsedStorageMB(ctx context.Context) (float64, error) {
	end := time.Now().UTC()
	start := end.Add(-r.window)

	resp, err := r.client.QueryResource(ctx, r.resourceID, &azquery.MetricsClientQueryResourceOptions{
		MetricNames: to.Ptr(usedStorageMetric),
		Timespan:    to.Ptr(azquery.NewTimeInterval(start, end)),
		Interval:    to.Ptr(metricGrain),
		Aggregation: []*azquery.AggregationType{to.Ptr(azquery.AggregationTypeAverage)},
	})
	if err != nil {
		return 0, fmt.Errorf("querying %s for %s: %w", usedStorageMetric, r.resourceID, err)
	}

	// The platform may return empty leading points; take the latest one
	// that carries a value.
	var latest *float64
	for _, metric := range resp.Value {
		for _, series := range metric.TimeSeries {
			for _, point := range series.Data {
				if point.Average != nil {
					latest = point.Average
				}
			}
		}
	}
	if latest == nil {
		return 0, fmt.Errorf("no %s data points in the last %v", usedStorageMetric, r.window)
	}
	return *latest, nil
}
