package pipeline

// Provenance is the side-table that travels with a Series through the
// cascade: a QC flag bitmask and an imputation method label per point.
// Flags accumulate monotonically; the first stage to fill a point fixes
// its label.
type Provenance struct {
	flags   []int32
	methods []string // "" means original measurement retained
}

// NewProvenance creates empty provenance for a series of n points.
func NewProvenance(n int) *Provenance {
	return &Provenance{
		flags:   make([]int32, n),
		methods: make([]string, n),
	}
}

// SetFlag ORs flag into point i's bitmask.
func (p *Provenance) SetFlag(i int, flag int32) {
	p.flags[i] |= flag
}

// Flags returns point i's accumulated bitmask.
func (p *Provenance) Flags(i int) int32 {
	return p.flags[i]
}

// Label records method as point i's imputation label unless an earlier
// stage already labeled it.
func (p *Provenance) Label(i int, method string) {
	if p.methods[i] == "" {
		p.methods[i] = method
	}
}

// Method returns point i's imputation label, or "" for an original value.
func (p *Provenance) Method(i int) string {
	return p.methods[i]
}
