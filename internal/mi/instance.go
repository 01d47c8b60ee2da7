// Package mi wraps the managed-instance administrative API: database
// existence and status lookups, delete, point-in-time restore submission,
// and the storage figures the capacity check reads.
package mi

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"

	"github.com/frobelworks/dbops/internal/config"
)

// StatusOnline is the target database status that completes a restore.
const StatusOnline = "Online"

// StatusUnknown is reported when a status lookup fails; the poll loop
// keeps going rather than treating it as fatal, since the database may not
// be visible yet.
const StatusUnknown = "Unknown"

// Manager issues administrative operations against the target instance,
// restoring from the source instance.
type Manager struct {
	databases *armsql.ManagedDatabasesClient
	instances *armsql.ManagedInstancesClient
	source    config.InstanceConfig
	target    config.InstanceConfig
}

// NewManager creates a manager for a source/target instance pair.
func NewManager(source, target config.InstanceConfig, cred azcore.TokenCredential) (*Manager, error) {
	databases, err := armsql.NewManagedDatabasesClient(target.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating managed databases client: %w", err)
	}
	instances, err := armsql.NewManagedInstancesClient(target.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating managed instances client: %w", err)
	}
	return &Manager{
		databases: databases,
		instances: instances,
		source:    source,
		target:    target,
	}, nil
}

// InstanceResourceID returns the ARM resource ID of a managed instance.
func InstanceResourceID(c config.InstanceConfig) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Sql/managedInstances/%s",
		c.SubscriptionID, c.ResourceGroup, c.Name)
}

// DatabaseResourceID returns the ARM resource ID of a managed database.
func DatabaseResourceID(c config.InstanceConfig, database string) string {
	return InstanceResourceID(c) + "/databases/" + database
}

// Exists reports whether a database exists on the target instance.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.databases.Get(ctx, m.target.ResourceGroup, m.target.Name, name, nil)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("looking up database %s on %s: %w", name, m.target.Name, err)
	}
	return true, nil
}

// Delete starts deleting a database on the target instance. The asynchronous
// handle is discarded; completion is observed by re-querying existence.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if _, err := m.databases.BeginDelete(ctx, m.target.ResourceGroup, m.target.Name, name, nil); err != nil {
		return fmt.Errorf("deleting database %s on %s: %w", name, m.target.Name, err)
	}
	return nil
}

// SubmitRestore starts a point-in-time restore of the source database into
// the target instance under targetDB. It does not block on the returned
// operation; the caller re-derives progress from the database status.
func (m *Manager) SubmitRestore(ctx context.Context, sourceDB, targetDB string, restorePoint time.Time) error {
	parameters := armsql.ManagedDatabase{
		Location: to.Ptr(m.target.Location),
		Properties: &armsql.ManagedDatabaseProperties{
			CreateMode:         to.Ptr(armsql.ManagedDatabaseCreateModePointInTimeRestore),
			SourceDatabaseID:   to.Ptr(DatabaseResourceID(m.source, sourceDB)),
			RestorePointInTime: to.Ptr(restorePoint),
		},
	}
	_, err := m.databases.BeginCreateOrUpdate(ctx, m.target.ResourceGroup, m.target.Name, targetDB, parameters, nil)
	if err != nil {
		return fmt.Errorf("submitting point-in-time restore of %s into %s/%s: %w",
			sourceDB, m.target.Name, targetDB, err)
	}
	return nil
}

// Status returns the platform-reported status of a database on the target
// instance, or StatusUnknown with a nil error when the lookup fails.
func (m *Manager) Status(ctx context.Context, name string) (string, error) {
	resp, err := m.databases.Get(ctx, m.target.ResourceGroup, m.target.Name, name, nil)
	if err != nil {
		return StatusUnknown, nil
	}
	if resp.Properties == nil || resp.Properties.Status == nil {
		return StatusUnknown, nil
	}
	return string(*resp.Properties.Status), nil
}

// TotalStorageMB returns the target instance's provisioned storage.
func (m *Manager) TotalStorageMB(ctx context.Context) (float64, error) {
	resp, err := m.instances.Get(ctx, m.target.ResourceGroup, m.target.Name, nil)
	if err != nil {
		return 0, fmt.Errorf("reading instance descriptor for %s: %w", m.target.Name, err)
	}
	if resp.Properties == nil || resp.Properties.StorageSizeInGB == nil {
		return 0, fmt.Errorf("instance %s reports no storage size", m.target.Name)
	}
	return float64(*resp.Properties.StorageSizeInGB) * 1024, nil
}
