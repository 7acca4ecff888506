package entity

// Source identifies which stage of the resolution pipeline produced a price.
type Source string

const (
	SourceCache        Source = "cache"
	SourceUpstream     Source = "upstream"
	SourceInterpolated Source = "interpolated"
)
