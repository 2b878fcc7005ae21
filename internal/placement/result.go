package placement

// Placement records an object copied onto a volume.
type Placement struct {
	Path   string `json:"path"`
	Volume string `json:"volume"`
	Size   int64  `json:"size"`
	Views  int64  `json:"views"`
}

// Eviction records an object removed from a volume to make room.
type Eviction struct {
	Path   string `json:"path"`
	Volume string `json:"volume"`
	Size   int64  `json:"size"`
	Views  int64  `json:"views"`
}

// Failure records a candidate that could not be placed, or an eviction that
// could not be carried out.
type Failure struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Err  error  `json:"-"`
}

// Result is the outcome of one placement pass.
type Result struct {
	Placed  []Placement `json:"placed"`
	Evicted []Eviction  `json:"evicted"`
	Failed  []Failure   `json:"failed"`
}

// PlacedBytes sums the sizes of placed objects.
func (r *Result) PlacedBytes() int64 {
	var total int64
	for _, p := range r.Placed {
		total += p.Size
	}
	return total
}

// EvictedBytes sums the sizes of evicted objects.
func (r *Result) EvictedBytes() int64 {
	var total int64
	for _, ev := range r.Evicted {
		total += ev.Size
	}
	return total
}
