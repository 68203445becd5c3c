package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/loghive/internal/activity"
	"github.com/ChuLiYu/loghive/internal/metrics"
	"github.com/ChuLiYu/loghive/pkg/types"
)

// Coordinator resolves the master role once at boot, after this node's
// own record has been registered. There is deliberately no distributed
// lock and no retry loop: a conflicting master record gets exactly one
// fixed grace period to expire before this node demotes itself and
// raises a one-time alert. The transient window where two nodes both
// believe they are master is tolerated and surfaced, not prevented.
type Coordinator struct {
	status        *Status
	nodes         NodeStore
	notifications NotificationStore
	activity      *activity.Writer
	metrics       *metrics.Collector
	logger        *slog.Logger

	// pingTimeout is the grace period granted to a suspected stale
	// master record before the conflict is treated as genuine.
	pingTimeout time.Duration
}

// NewCoordinator wires the coordinator. The activity writer and metrics
// collector may be nil.
func NewCoordinator(status *Status, nodes NodeStore, notifications NotificationStore, aw *activity.Writer, mc *metrics.Collector, pingTimeout time.Duration) *Coordinator {
	return &Coordinator{
		status:        status,
		nodes:         nodes,
		notifications: notifications,
		activity:      aw,
		metrics:       mc,
		logger:        slog.With("component", "cluster.coordinator"),
		pingTimeout:   pingTimeout,
	}
}

// Run performs the boot-time master coordination. It never fails the
// boot: every conflict resolves to either proceeding as master or
// demoting with an alert.
func (c *Coordinator) Run(ctx context.Context) error {
	// The role is read when the coordination finishes, not when the
	// defer is set up, so a demotion lands in the gauge.
	defer func() { c.metrics.SetMaster(c.status.IsMaster()) }()

	if !c.status.IsMasterCandidate() {
		c.logger.Info("node is not a master candidate, skipping master coordination")
		return nil
	}

	only, err := c.nodes.IsOnlyMaster(ctx, c.status.NodeID())
	if err != nil {
		return fmt.Errorf("failed to query node membership: %w", err)
	}
	if only {
		c.logger.Info("no other master present, proceeding as master")
		return nil
	}

	c.logger.Warn("detected another master in the cluster, retrying to make sure it is not a stale instance",
		"grace", c.pingTimeout)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.pingTimeout):
	}

	only, err = c.nodes.IsOnlyMaster(ctx, c.status.NodeID())
	if err != nil {
		return fmt.Errorf("failed to re-query node membership: %w", err)
	}
	if only {
		c.logger.Warn("stale master has gone, proceeding as master")
		return nil
	}

	msg := "Detected other master node in the cluster. Starting as non-master. " +
		"This is a mis-configuration you should fix."
	c.logger.Warn(msg)
	c.activity.Write("cluster.coordinator", msg)

	first, err := c.notifications.PublishIfFirst(ctx, types.Notification{
		Type:     types.NotificationMultiMaster,
		Severity: types.SeverityUrgent,
		NodeID:   c.status.NodeID(),
	})
	if err != nil {
		c.logger.Error("failed to publish multi-master notification", "error", err)
	} else if !first {
		c.logger.Debug("multi-master notification already published by another node")
	}

	c.status.Demote()
	return nil
}
