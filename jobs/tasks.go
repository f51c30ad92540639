// Package jobs schedules and executes the bridge's sync tasks over Asynq.
// Each task is a full, self-contained run of one pipeline; the queue gives us
// cron scheduling, manual triggers, and overlap protection in one place.
package jobs

import (
	"fmt"

	"github.com/hibiken/asynq"
)

// QueueDefault is the queue all sync tasks run on. Concurrency 1 per queue
// keeps runs from overlapping the shared Odoo and MSSQL endpoints.
const QueueDefault = "default"

// Task types, one per pipeline.
const (
	TaskInventorySync = "sync:odoo_inventory"
	TaskPriceSync     = "sync:odoo_price"
	TaskErpPostgres   = "sync:erp_postgres"
	TaskWixInventory  = "sync:wix_inventory"
)

// Cron schedules. Inventory and price lanes are offset inside the hour so the
// fast lane never lands on top of a full reconciliation.
const (
	CronInventorySync = "15 * * * *"
	CronPriceSync     = "45 * * * *"
	CronErpPostgres   = "*/30 6-21 * * *"
	CronWixInventory  = "5,35 * * * *"
)

// TaskNames maps public task names (used by the admin API) to Asynq types.
var TaskNames = map[string]string{
	"inventory-sync": TaskInventorySync,
	"price-sync":     TaskPriceSync,
	"erp-pg-sync":    TaskErpPostgres,
	"wix-sync":       TaskWixInventory,
}

// NewSyncTask constructs a task for the named pipeline. Sync tasks carry no
// payload; everything they need comes from wiring, not the queue.
func NewSyncTask(name string) (*asynq.Task, error) {
	taskType, ok := TaskNames[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
	return asynq.NewTask(taskType, nil), nil
}
