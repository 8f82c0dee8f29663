// README: Lifecycle orderings as data; status chain, stage flows and tracking flows.
package request

// StatusFlow is the staff-facing chain.
var StatusFlow = []Status{StatusPending, StatusReviewed, StatusConverted, StatusClosed}

var pickupTracking = []TrackingStatus{
	TrackingRequestReceived,
	TrackingArrivingToReceive,
	TrackingReceived,
	TrackingTechnicianAssigned,
	TrackingDiagnosisCompleted,
	TrackingPartsPending,
	TrackingRepairing,
	TrackingReadyForDelivery,
	TrackingDelivered,
}

var serviceCenterTracking = []TrackingStatus{
	TrackingAwaitingDropoff,
	TrackingQueued,
	TrackingTechnicianAssigned,
	TrackingDiagnosisCompleted,
	TrackingPartsPending,
	TrackingRepairing,
	TrackingReadyForDelivery,
	TrackingDelivered,
}

type flowKey struct {
	mode   ServiceMode
	intent Intent
}

var stageFlows = map[flowKey][]Stage{
	{ModePickup, IntentQuote}: {
		StageIntake, StageAssessment, StageAwaitingCustomer, StageAuthorized, StagePickupScheduled,
		StagePickedUp, StageInRepair, StageReady, StageOutForDelivery, StageCompleted, StageClosed,
	},
	{ModeServiceCenter, IntentQuote}: {
		StageIntake, StageAssessment, StageAwaitingCustomer, StageAuthorized, StageAwaitingDropoff,
		StageDeviceReceived, StageInRepair, StageReady, StageCompleted, StageClosed,
	},
	{ModePickup, IntentRepair}: {
		StageIntake, StageAssessment, StageAuthorized, StagePickupScheduled,
		StagePickedUp, StageInRepair, StageReady, StageOutForDelivery, StageCompleted, StageClosed,
	},
	{ModeServiceCenter, IntentRepair}: {
		StageIntake, StageAssessment, StageAuthorized, StageAwaitingDropoff,
		StageDeviceReceived, StageInRepair, StageReady, StageCompleted, StageClosed,
	},
}

// jobCreationStages are the stages where the device is in hand and a job
// ticket gets opened.
var jobCreationStages = map[Stage]bool{
	StagePickedUp:       true,
	StageDeviceReceived: true,
}

func ValidMode(m ServiceMode) bool {
	return m == ModePickup || m == ModeServiceCenter
}

func ValidIntent(i Intent) bool {
	return i == IntentRepair || i == IntentQuote
}

// StageFlow returns the ordered stages for a mode and intent. Unknown intents
// fall back to the repair flow.
func StageFlow(mode ServiceMode, intent Intent) []Stage {
	if intent != IntentQuote {
		intent = IntentRepair
	}
	if mode != ModePickup {
		mode = ModeServiceCenter
	}
	return stageFlows[flowKey{mode, intent}]
}

// TrackingFlow returns the customer-facing order for a mode. Cancelled is not
// part of either flow.
func TrackingFlow(mode ServiceMode) []TrackingStatus {
	if mode == ModePickup {
		return pickupTracking
	}
	return serviceCenterTracking
}

// DeviceThreshold is the first tracking status at which the device is on site.
func DeviceThreshold(mode ServiceMode) TrackingStatus {
	if mode == ModePickup {
		return TrackingReceived
	}
	return TrackingQueued
}

// InitialTracking is the first element of the mode's tracking flow.
func InitialTracking(mode ServiceMode) TrackingStatus {
	return TrackingFlow(mode)[0]
}

func IsJobCreationStage(s Stage) bool {
	return jobCreationStages[s]
}

func indexOf[T comparable](flow []T, v T) int {
	for i, s := range flow {
		if s == v {
			return i
		}
	}
	return -1
}

func statusIndex(s Status) int {
	return indexOf(StatusFlow, s)
}
