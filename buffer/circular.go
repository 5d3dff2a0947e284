package buffer

// CircularFloat is a fixed-size window over the most recent floats added,
// kept in the order they were appended. Progress reporting keeps wall clock
// readings in one to estimate iterations per second.
type CircularFloat struct {
	buffer    []float64 // actual storage
	pos       int       // next write position
	BufSize   int       // BufSize is the fixed number of values kept
	Count     int       // Count is the number of values held, always <= BufSize
	TotalSeen int64     // TotalSeen is the total number of times Add has been called
}

// NewCircularFloat creates a window of size values. Sizes below 2 are
// raised to 2 so that a span always exists once full.
func NewCircularFloat(size int) *CircularFloat {
	if size < 2 {
		size = 2
	}
	return &CircularFloat{
		buffer:  make([]float64, size),
		BufSize: size,
	}
}

// Add appends v, overwriting the oldest value when full
func (c *CircularFloat) Add(v float64) {
	c.TotalSeen++
	c.buffer[c.pos] = v
	c.pos = (c.pos + 1) % c.BufSize
	if c.Count < c.BufSize {
		c.Count++
	}
}

// Oldest returns the earliest value still held; false when empty
func (c *CircularFloat) Oldest() (float64, bool) {
	if c.Count == 0 {
		return 0, false
	}
	return c.buffer[c.index(0)], true
}

// Newest returns the most recent value; false when empty
func (c *CircularFloat) Newest() (float64, bool) {
	if c.Count == 0 {
		return 0, false
	}
	return c.buffer[c.index(c.Count-1)], true
}

// index maps k (0 = oldest) onto the storage slice
func (c *CircularFloat) index(k int) int {
	start := c.pos - c.Count
	if start < 0 {
		start += c.BufSize
	}
	return (start + k) % c.BufSize
}

// Values returns a copy of the held values, oldest first
func (c *CircularFloat) Values() []float64 {
	out := make([]float64, c.Count)
	for k := range out {
		out[k] = c.buffer[c.index(k)]
	}
	return out
}

// Rate is the number of steps per unit between the oldest and newest
// values, where consecutive values are step apart. Zero until two values
// with a positive span are held.
func (c *CircularFloat) Rate(step float64) float64 {
	if c.Count < 2 {
		return 0
	}
	first, _ := c.Oldest()
	last, _ := c.Newest()
	span := last - first
	if span <= 0 {
		return 0
	}
	return step * float64(c.Count-1) / span
}
