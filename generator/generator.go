package generator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator hands out unique, roughly time ordered IDs.
type IDGenerator interface {
	NextID() int64
}

func IDbyIP(ip string) uint32 {
	var id uint32
	v4 := net.ParseIP(ip).To4()
	if v4 == nil {
		return 0
	}
	binary.Read(bytes.NewBuffer(v4), binary.BigEndian, &id)
	return id
}

// NodeID maps a pod IP onto the snowflake node range. Without an IP the
// node number is taken from the clock.
func NodeID(podIP string) int64 {
	mask := int64(1)<<snowflake.NodeBits - 1
	if podIP != "" {
		if id := IDbyIP(podIP); id != 0 {
			return int64(id) & mask
		}
	}
	return time.Now().UnixNano() & mask
}

type Snowflake struct {
	node *snowflake.Node
}

func NewSnowflake(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Snowflake{node: n}, nil
}

func (s *Snowflake) NextID() int64 {
	return s.node.Generate().Int64()
}
