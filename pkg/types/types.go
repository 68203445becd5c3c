// Package types defines the core domain model shared across the loghive node.
package types

import (
	"time"
)

// InputID is the runtime identifier of a launched input instance.
// It is assigned at launch time, unique within the process and never reused.
type InputID string

// Stage is the lifecycle stage of a launched input instance.
type Stage string

// Lifecycle stage constants. CREATED and CONFIGURED are transient and
// usually not observable outside the launch call; TERMINATED marks the
// point at which the state is removed from the registry.
const (
	StageCreated    Stage = "created"    // accepted, configuration hook not yet run
	StageConfigured Stage = "configured" // configuration hook succeeded, start pending
	StageRunning    Stage = "running"    // input goroutine is executing
	StageStopping   Stage = "stopping"   // stop requested, waiting for the input to wind down
	StageStopped    Stage = "stopped"    // input wound down (or was force-reclaimed)
	StageFailed     Stage = "failed"     // initialize or run errored; detail holds the cause
	StageTerminated Stage = "terminated" // removed from the registry
)

func (s Stage) String() string {
	return string(s)
}

// Active reports whether the stage counts against type exclusivity.
func (s Stage) Active() bool {
	return s == StageConfigured || s == StageRunning
}

// InputRecord is the durable form of a configured input instance, shared
// across nodes through the input store. It is written by the node that
// owns the instance (or any node, for non-global instances) and read by
// every node at boot to re-hydrate previously running inputs.
type InputRecord struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Title         string                 `json:"title"`
	CreatorID     string                 `json:"creator_user_id"`
	Global        bool                   `json:"global"`
	NodeID        string                 `json:"node_id,omitempty"`
	Configuration map[string]interface{} `json:"configuration"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NodeRecord is one cluster member as kept by the node membership store.
// The store does not enforce single-mastership; detecting and resolving
// conflicting master records is the cluster coordinator's job.
type NodeRecord struct {
	NodeID           string    `json:"node_id"`
	IsMaster         bool      `json:"is_master"`
	TransportAddress string    `json:"transport_address"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// NotificationType identifies a class of operator-visible alert.
type NotificationType string

// NotificationSeverity ranks an alert.
type NotificationSeverity string

const (
	NotificationMultiMaster NotificationType = "multi_master"

	SeverityNormal NotificationSeverity = "normal"
	SeverityUrgent NotificationSeverity = "urgent"
)

// Notification is an operator-visible cluster alert. For a given type at
// most one record is ever created: publication uses publish-if-first
// semantics, so concurrent detections of the same condition collapse
// into a single stored record.
type Notification struct {
	Type             NotificationType     `json:"type"`
	Severity         NotificationSeverity `json:"severity"`
	NodeID           string               `json:"node_id,omitempty"`
	FirstPublishedAt time.Time            `json:"first_published_at"`
}
