package moderation

// Priority tiers run 1 (most urgent) through 5. Unmapped reasons fall back
// to defaultPriority.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
	PriorityMinimal  = 5

	defaultPriority = PriorityLow

	// moderatorPriorityFloor: moderator-initiated flags are never weaker
	// than P2, regardless of reason.
	moderatorPriorityFloor = PriorityHigh
)

// reasonPriorities is the fixed reason → priority table.
var reasonPriorities = map[ReportReason]int{
	ReasonSelfHarm:             PriorityCritical,
	ReasonHateSpeech:           PriorityHigh,
	ReasonHarassment:           PriorityHigh,
	ReasonInappropriateContent: PriorityMedium,
	ReasonSpam:                 PriorityMedium,
	ReasonCopyrightViolation:   PriorityMedium,
	ReasonImpersonation:        PriorityMedium,
	ReasonOther:                PriorityLow,
}

// PriorityForReason maps a report reason to its priority tier. Unmapped
// input defaults to P4.
func PriorityForReason(reason ReportReason) int {
	if p, ok := reasonPriorities[reason]; ok {
		return p
	}
	return defaultPriority
}

// PriorityForModeratorFlag computes the priority for a moderator-initiated
// flag without an explicit override: min(calculated, 2). P1 reasons stay P1.
func PriorityForModeratorFlag(reason ReportReason) int {
	p := PriorityForReason(reason)
	if p > moderatorPriorityFloor {
		return moderatorPriorityFloor
	}
	return p
}

// slaTargetHours is the maximum resolution time per priority tier before a
// report counts as non-compliant.
var slaTargetHours = map[int]int{
	PriorityCritical: 2,
	PriorityHigh:     8,
	PriorityMedium:   24,
	PriorityLow:      48,
	PriorityMinimal:  72,
}

// SLATargetHours returns the resolution target for a priority tier. Unknown
// tiers get the weakest target.
func SLATargetHours(priority int) int {
	if h, ok := slaTargetHours[priority]; ok {
		return h
	}
	return slaTargetHours[PriorityMinimal]
}
