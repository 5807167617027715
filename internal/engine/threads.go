package engine

const (
	threadsMin      = 2
	threadsMax      = 6
	threadsHeadroom = 2
)

// ResolveThreads returns requested when positive, otherwise
// clamp(online-2, 2, 6): two cores stay free for the OS and UI and
// parallelism is capped where returns diminish on mobile-class CPUs.
func ResolveThreads(requested, online int) int {
	if requested > 0 {
		return requested
	}
	n := online - threadsHeadroom
	if n < threadsMin {
		return threadsMin
	}
	if n > threadsMax {
		return threadsMax
	}
	return n
}
