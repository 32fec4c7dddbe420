package monitoring

import (
	"sync"
	"time"

	"obesityboard/pipeline"
)

// EventType 看板事件类型
type EventType string

const (
	SnapshotUpdated EventType = "snapshot_updated"
	ReloadFailed    EventType = "reload_failed"
	Heartbeat       EventType = "heartbeat"
)

// DashboardEvent 看板事件
type DashboardEvent struct {
	Type      EventType   `json:"type"`
	Version   uint64      `json:"version"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SnapshotSummary 推送给客户端的快照摘要
type SnapshotSummary struct {
	RunID     string    `json:"run_id"`
	Accuracy  float64   `json:"accuracy"`
	Rows      int       `json:"rows"`
	Removed   int       `json:"removed"`
	StartedAt time.Time `json:"started_at"`
}

// Status 看板状态
type Status struct {
	Ready       bool      `json:"ready"`
	Version     uint64    `json:"version"`
	RunID       string    `json:"run_id,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
	LastError   string    `json:"last_error,omitempty"`
	Subscribers int       `json:"subscribers"`
}

// Dashboard 持有当前流水线结果。结果本身不可变，只整体替换。
type Dashboard struct {
	mu          sync.RWMutex
	current     *pipeline.Result
	version     uint64
	lastUpdate  time.Time
	lastError   string
	subscribers map[string]chan DashboardEvent
}

func NewDashboard() *Dashboard {
	return &Dashboard{
		subscribers: make(map[string]chan DashboardEvent),
	}
}

// Current 返回当前快照及版本号，未就绪时返回 nil
func (d *Dashboard) Current() (*pipeline.Result, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.version
}

// Swap 替换快照并通知订阅者，返回新版本号
func (d *Dashboard) Swap(result *pipeline.Result) uint64 {
	d.mu.Lock()
	d.current = result
	d.version++
	d.lastUpdate = time.Now()
	d.lastError = ""
	version := d.version
	d.mu.Unlock()

	d.broadcast(DashboardEvent{
		Type:      SnapshotUpdated,
		Version:   version,
		Data:      Summarize(result),
		Timestamp: time.Now(),
	})
	return version
}

// RecordFailure 记录重新加载失败，保留原快照
func (d *Dashboard) RecordFailure(err error) {
	d.mu.Lock()
	d.lastError = err.Error()
	version := d.version
	d.mu.Unlock()

	d.broadcast(DashboardEvent{
		Type:      ReloadFailed,
		Version:   version,
		Data:      map[string]string{"error": err.Error()},
		Timestamp: time.Now(),
	})
}

func (d *Dashboard) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Status{
		Ready:       d.current != nil,
		Version:     d.version,
		LastUpdate:  d.lastUpdate,
		LastError:   d.lastError,
		Subscribers: len(d.subscribers),
	}
	if d.current != nil {
		s.RunID = d.current.RunID
	}
	return s
}

func (d *Dashboard) Subscribe(id string) chan DashboardEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, exists := d.subscribers[id]; exists {
		return ch
	}
	ch := make(chan DashboardEvent, 16)
	d.subscribers[id] = ch
	return ch
}

func (d *Dashboard) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, exists := d.subscribers[id]; exists {
		close(ch)
		delete(d.subscribers, id)
	}
}

// broadcast 非阻塞投递，慢订阅者会丢消息
func (d *Dashboard) broadcast(event DashboardEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ch := range d.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func Summarize(result *pipeline.Result) SnapshotSummary {
	if result == nil {
		return SnapshotSummary{}
	}
	s := SnapshotSummary{
		RunID:     result.RunID,
		Rows:      len(result.Records),
		Removed:   result.Removed,
		StartedAt: result.StartedAt,
	}
	if result.Report != nil {
		s.Accuracy = result.Report.Accuracy
	}
	return s
}
