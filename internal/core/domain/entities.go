package domain

import (
	"math/big"
	"time"
)

// Source tells which side of the comparison an object belongs to.
type Source string

const (
	SourceGT  Source = "gt"
	SourceDET Source = "det"
)

// Strategy selects the matching algorithm.
type Strategy string

const (
	// StrategyGrouped clusters overlapping objects and assigns fractional charges.
	StrategyGrouped Strategy = "grouped"
	// StrategyNearest is the binary 1-nearest-neighbour matcher.
	StrategyNearest Strategy = "nearest"
)

// Tag is the binary outcome assigned by the nearest-neighbour matcher.
type Tag string

const (
	TagTP Tag = "TP"
	TagFP Tag = "FP"
	TagFN Tag = "FN"
)

// SpatialObject is one input record (a surveyed or a detected tree).
type SpatialObject struct {
	ID         string         `json:"id"`
	Geometry   *Point         `json:"geometry"`
	Source     Source         `json:"source"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Group is a maximal cluster of GT and DET objects connected by overlap.
// Members are identities without origin prefix.
type Group struct {
	ID  int      `json:"id"`
	GT  []string `json:"gt"`
	DET []string `json:"det"`
}

// Charge is the fractional outcome of one object. FP is nil on GT objects and
// FN is nil on DET objects. Values are never mutated once assigned.
type Charge struct {
	TP *big.Rat `json:"tp_charge"`
	FP *big.Rat `json:"fp_charge,omitempty"`
	FN *big.Rat `json:"fn_charge,omitempty"`
}

// TaggedObject is an input object augmented with its match outcome.
type TaggedObject struct {
	SpatialObject
	GroupID *int   `json:"group_id"`
	Charge  Charge `json:"charge"`
	Tag     Tag    `json:"tag,omitempty"`
}

// MatchResult holds both augmented collections of one evaluation.
type MatchResult struct {
	GT     []TaggedObject `json:"gt"`
	DET    []TaggedObject `json:"det"`
	Groups []Group        `json:"groups,omitempty"`
}

// MetricsRecord summarises an evaluation.
type MetricsRecord struct {
	TP        float64 `json:"TP"`
	FP        float64 `json:"FP"`
	FN        float64 `json:"FN"`
	Precision float64 `json:"p"`
	Recall    float64 `json:"r"`
	F1        float64 `json:"f1"`
	TPPlusFN  float64 `json:"TP+FN"`
	TPPlusFP  float64 `json:"TP+FP"`

	// Exact sums, set by the grouped strategy.
	TPExact string `json:"TP_exact,omitempty"`
	FPExact string `json:"FP_exact,omitempty"`
	FNExact string `json:"FN_exact,omitempty"`
}

// SectorMetrics is the metrics record of the objects clipped to one sector.
type SectorMetrics struct {
	Sector  string        `json:"sector"`
	NumGT   int           `json:"num_gt"`
	NumDET  int           `json:"num_det"`
	Metrics MetricsRecord `json:"metrics"`
}

// Evaluation is a completed, stored scoring run.
type Evaluation struct {
	ID         string          `json:"id"`
	Strategy   Strategy        `json:"strategy"`
	ToleranceM float64         `json:"tolerance_m"`
	Digest     string          `json:"digest"`
	Metrics    MetricsRecord   `json:"metrics"`
	Sectors    []SectorMetrics `json:"sectors,omitempty"`
	NumGroups  int             `json:"num_groups"`
	NumGT      int             `json:"num_gt"`
	NumDET     int             `json:"num_det"`
	Balanced   bool            `json:"balanced"`
	Result     *MatchResult    `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EvaluationRequest is the plain-data input of one evaluation. Unset fields
// take the service defaults.
type EvaluationRequest struct {
	GT         []SpatialObject `json:"gt"`
	DET        []SpatialObject `json:"det"`
	ToleranceM *float64        `json:"tolerance_m,omitempty"`
	Strategy   Strategy        `json:"strategy,omitempty"`
	GTPrefix   string          `json:"gt_prefix,omitempty"`
	DETPrefix  string          `json:"det_prefix,omitempty"`
	Sectors    []Sector        `json:"-"`
	SectorBufM *float64        `json:"sector_buffer_m,omitempty"`
}

// EvaluationCompleted is the event published after an evaluation is stored.
type EvaluationCompleted struct {
	EvaluationID string        `json:"evaluation_id"`
	Strategy     Strategy      `json:"strategy"`
	Metrics      MetricsRecord `json:"metrics"`
	CompletedAt  time.Time     `json:"completed_at"`
}
