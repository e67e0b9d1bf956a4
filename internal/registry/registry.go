// Package registry stores observable snapshots of open containers and their
// streams, so other processes can see what is being written.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/zsiec/avcore/internal/errors"
)

// ErrNotFound is returned when a container snapshot does not exist.
var ErrNotFound = apperrors.New(apperrors.ErrorTypeNotFound, "container not found")

// Store defines snapshot persistence.
type Store interface {
	// Put creates or replaces a snapshot, keeping the original CreatedAt.
	Put(ctx context.Context, snap *ContainerSnapshot) error

	// Get retrieves a snapshot by container ID
	Get(ctx context.Context, id string) (*ContainerSnapshot, error)

	// List returns all live snapshots
	List(ctx context.Context) ([]*ContainerSnapshot, error)

	// Delete removes a snapshot
	Delete(ctx context.Context, id string) error

	// Close closes any resources held by the store
	Close() error
}

// Pager is implemented by stores that can list snapshots a page at a time.
// A returned cursor of 0 means the listing is complete.
type Pager interface {
	ListPaginated(ctx context.Context, cursor uint64, count int64) ([]*ContainerSnapshot, uint64, error)
}

// ContainerState is the lifecycle of a container being written.
type ContainerState string

const (
	ContainerOpen    ContainerState = "open"
	ContainerWriting ContainerState = "writing"
	ContainerClosed  ContainerState = "closed"
	ContainerError   ContainerState = "error"
)

// ContainerSnapshot describes one output container.
type ContainerSnapshot struct {
	ID        string           `json:"id"`
	Format    string           `json:"format"`
	Output    string           `json:"output"`
	State     ContainerState   `json:"state"`
	Streams   []StreamSnapshot `json:"streams"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// StreamSnapshot describes one stream of a container.
type StreamSnapshot struct {
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Codec    string `json:"codec"`
	CoderID  string `json:"coder_id,omitempty"`
	TimeBase string `json:"time_base"`
	// LastDTS is absent until the stream has written a timestamped packet.
	LastDTS *int64 `json:"last_dts,omitempty"`
	Packets int64  `json:"packets"`
	Repairs int64  `json:"repairs"`
	Bytes   int64  `json:"bytes"`
}

// Clone returns a deep copy.
func (s *ContainerSnapshot) Clone() *ContainerSnapshot {
	c := *s
	c.Streams = make([]StreamSnapshot, len(s.Streams))
	for i, st := range s.Streams {
		if st.LastDTS != nil {
			v := *st.LastDTS
			st.LastDTS = &v
		}
		c.Streams[i] = st
	}
	return &c
}

// GenerateContainerID creates a unique, readable container ID.
// Example: webm_20240115_143052_001
func GenerateContainerID(format string) string {
	now := time.Now()
	counter := nextCounter()
	return fmt.Sprintf("%s_%s_%03d", format, now.Format("20060102_150405"), counter)
}

var (
	containerCounter uint64
	counterMu        sync.Mutex
)

func nextCounter() uint64 {
	counterMu.Lock()
	defer counterMu.Unlock()
	containerCounter++
	if containerCounter > 999 {
		containerCounter = 1
	}
	return containerCounter
}

func notFound(id string) error {
	return apperrors.NewNotFoundError("container " + id)
}
