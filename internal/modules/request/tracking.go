// README: Tracking status engine; ordering and job gating over the mode's flow.
package request

// IsAllowed reports whether tracking may move from current to target. Equal
// values are an idempotent re-apply. Cancelled is reachable from any position
// short of Delivered and nothing leaves it, even with strict off. Otherwise
// strict off checks only membership in the flow.
func IsAllowed(current, target TrackingStatus, flow []TrackingStatus, strict bool) bool {
	if current == target {
		return true
	}
	if current == TrackingCancelled {
		return false
	}
	if !strict {
		return target == TrackingCancelled || indexOf(flow, target) >= 0
	}
	if target == TrackingCancelled {
		return current != TrackingDelivered
	}
	ci, ti := indexOf(flow, current), indexOf(flow, target)
	return ci >= 0 && ti >= ci
}

// IsJobGated reports whether target is Technician Assigned or later in flow.
func IsJobGated(target TrackingStatus, flow []TrackingStatus) bool {
	ti := indexOf(flow, target)
	return ti >= 0 && ti >= indexOf(flow, TrackingTechnicianAssigned)
}

// requiresSchedule lists the statuses that promise the customer a date.
func requiresSchedule(target TrackingStatus) bool {
	return target == TrackingArrivingToReceive || target == TrackingAwaitingDropoff
}

func isKnownTracking(target TrackingStatus, flow []TrackingStatus) bool {
	return target == TrackingCancelled || indexOf(flow, target) >= 0
}

var trackingMessages = map[TrackingStatus]string{
	TrackingRequestReceived:    "Your request is being reviewed by our team.",
	TrackingArrivingToReceive:  "Our team is on the way to collect your TV.",
	TrackingAwaitingDropoff:    "Please bring your TV to our service center.",
	TrackingReceived:           "Your TV has been received at our service center.",
	TrackingQueued:             "Your TV is queued for inspection.",
	TrackingTechnicianAssigned: "A technician has been assigned to your repair.",
	TrackingDiagnosisCompleted: "The issue has been diagnosed. We'll contact you with details.",
	TrackingPartsPending:       "Waiting for replacement parts to arrive.",
	TrackingRepairing:          "Repair work is in progress.",
	TrackingReadyForDelivery:   "Your device is ready for pickup/delivery!",
	TrackingDelivered:          "Your device has been delivered. Thank you!",
	TrackingCancelled:          "This request has been cancelled.",
}

func TrackingMessage(s TrackingStatus) string {
	if m, ok := trackingMessages[s]; ok {
		return m
	}
	return "Status updated to " + string(s)
}
