package progress

import (
	"math"
	"sort"

	"github.com/chocolingo/server/internal/quiz"
)

// Topic statuses on the knowledge map. Status is derived on every read from
// mastery and the prerequisite edge, never stored.
const (
	StatusLocked    = "locked"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// MapNode is one topic on the knowledge map.
type MapNode struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Status  string  `json:"status"`
	Mastery float64 `json:"mastery"`
}

// MapLevel groups a cluster's nodes by level tag. Mastery is the unweighted
// mean of the node masteries, rounded to one decimal.
type MapLevel struct {
	Level   string    `json:"level"`
	Nodes   []MapNode `json:"nodes"`
	Mastery float64   `json:"mastery"`
}

// MapCluster is a group of topics sharing a level tag.
type MapCluster struct {
	ID     int        `json:"id"`
	Title  string     `json:"title"`
	Levels []MapLevel `json:"levels"`
}

// Map is the per-user knowledge map view.
type Map struct {
	Clusters []MapCluster `json:"clusters"`
}

// buildMap groups topics into clusters keyed by their level tag (topics
// without one fall into "General") and derives each topic's status:
//
//   - completed when mastery >= 100
//   - active when 0 < mastery < 100
//   - otherwise locked while an unfinished prerequisite exists, active if not
//
// Clusters keep the insertion order of first encounter; levels within a
// cluster sort lexicographically.
func buildMap(topics []quiz.Topic, records []quiz.Progress) *Map {
	mastery := make(map[int64]float64, len(records))
	for _, p := range records {
		mastery[p.TopicID] = p.Mastery
	}

	type levelBucket struct {
		order []string
		nodes map[string][]MapNode
	}
	var clusterOrder []string
	buckets := make(map[string]*levelBucket)

	for _, topic := range topics {
		clusterKey := topic.Level
		if clusterKey == "" {
			clusterKey = "General"
		}
		levelKey := topic.Level
		if levelKey == "" {
			levelKey = "A0"
		}

		bucket, ok := buckets[clusterKey]
		if !ok {
			bucket = &levelBucket{nodes: make(map[string][]MapNode)}
			buckets[clusterKey] = bucket
			clusterOrder = append(clusterOrder, clusterKey)
		}
		if _, ok := bucket.nodes[levelKey]; !ok {
			bucket.order = append(bucket.order, levelKey)
		}
		bucket.nodes[levelKey] = append(bucket.nodes[levelKey], MapNode{
			ID:      topic.ID,
			Title:   topic.Title,
			Status:  topicStatus(topic, mastery),
			Mastery: mastery[topic.ID],
		})
	}

	m := &Map{Clusters: make([]MapCluster, 0, len(clusterOrder))}
	for i, clusterKey := range clusterOrder {
		bucket := buckets[clusterKey]
		sort.Strings(bucket.order)

		levels := make([]MapLevel, 0, len(bucket.order))
		for _, levelKey := range bucket.order {
			nodes := bucket.nodes[levelKey]
			sum := 0.0
			for _, n := range nodes {
				sum += n.Mastery
			}
			levels = append(levels, MapLevel{
				Level:   levelKey,
				Nodes:   nodes,
				Mastery: round1(sum / float64(len(nodes))),
			})
		}
		m.Clusters = append(m.Clusters, MapCluster{
			ID:     i + 1,
			Title:  clusterKey,
			Levels: levels,
		})
	}
	return m
}

func topicStatus(topic quiz.Topic, mastery map[int64]float64) string {
	m := mastery[topic.ID]
	switch {
	case m >= 100:
		return StatusCompleted
	case m > 0:
		return StatusActive
	case topic.PrerequisiteID != nil:
		if mastery[*topic.PrerequisiteID] >= 100 {
			return StatusActive
		}
		return StatusLocked
	default:
		return StatusActive
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
