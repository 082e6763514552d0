package metrics

import (
	"time"

	"github.com/cuemby/instance-scheduler/pkg/manager"
)

// Collector periodically samples the orchestrator's replicated state and the
// local Raft node's status into the package's prometheus gauges.
type Collector struct {
	manager *manager.Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRegistryMetrics()
	c.collectScheduleMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectRegistryMetrics() {
	instances, err := c.manager.ListRegisteredInstances()
	if err != nil {
		return
	}

	counts := make(map[string]map[string]int)
	for _, inst := range instances {
		service := string(inst.Service)
		state := string(inst.StoredState)
		if counts[service] == nil {
			counts[service] = make(map[string]int)
		}
		counts[service][state]++
	}

	for service, states := range counts {
		for state, count := range states {
			RegisteredInstancesTotal.WithLabelValues(service, state).Set(float64(count))
		}
	}
}

func (c *Collector) collectScheduleMetrics() {
	schedules, err := c.manager.ListSchedules()
	if err != nil {
		return
	}
	SchedulesTotal.Set(float64(len(schedules)))
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		RaftPeers.Set(float64(peers))
	}
}
