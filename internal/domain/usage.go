package domain

import "time"

// UsageLog is the per-job accounting row written after a successful render.
type UsageLog struct {
	UserID          string
	JobID           string
	Renditions      int
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
