// README: Stage engine; next-stage computation and customer-facing stage messages.
package request

// StagePolicy controls how far ahead staff may move a stage in one step.
type StagePolicy struct {
	// AllowSkip offers every later stage instead of only the next one.
	AllowSkip bool
}

// NextStages lists the stages the request may move to. It is empty once the
// request reaches closed or when its stage is not part of its workflow.
func NextStages(r *ServiceRequest, policy StagePolicy) []Stage {
	flow := StageFlow(r.ServiceMode, r.Intent)
	idx := indexOf(flow, r.Stage)
	if idx < 0 || r.Stage == StageClosed {
		return nil
	}
	end := idx + 2
	if policy.AllowSkip {
		end = len(flow)
	}
	if end > len(flow) {
		end = len(flow)
	}
	out := make([]Stage, end-idx-1)
	copy(out, flow[idx+1:end])
	return out
}

var stageMessages = map[Stage]string{
	StageIntake:           "Request received and is being processed.",
	StageAssessment:       "Your device is being assessed by our team.",
	StageAwaitingCustomer: "Quote sent - awaiting your response.",
	StageAuthorized:       "Repair authorized and scheduled.",
	StagePickupScheduled:  "Pickup has been scheduled.",
	StagePickedUp:         "Device has been picked up.",
	StageAwaitingDropoff:  "Awaiting your device drop-off at our service center.",
	StageDeviceReceived:   "Device received at service center.",
	StageInRepair:         "Repair is in progress.",
	StageReady:            "Your device is ready.",
	StageOutForDelivery:   "Device is out for delivery.",
	StageCompleted:        "Service completed successfully.",
	StageClosed:           "Case closed.",
}

func StageMessage(s Stage) string {
	if m, ok := stageMessages[s]; ok {
		return m
	}
	return "Status updated to " + string(s)
}
