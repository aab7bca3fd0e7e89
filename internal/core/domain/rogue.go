package domain

import "time"

// BaselineAP is one access point in the operator-triggered rogue
// baseline snapshot. Independent of scan cycles.
type BaselineAP struct {
	BSSID   string `json:"bssid"`
	SSID    string `json:"ssid"`
	Channel int    `json:"channel"`
}

// AlertKind classifies a rogue-detector finding.
type AlertKind string

const (
	// AlertEvilTwin: a baseline SSID reappeared on an unknown BSSID.
	AlertEvilTwin AlertKind = "EVIL_TWIN"
	// AlertNewAP: an unknown BSSID with an SSID not in the baseline.
	AlertNewAP AlertKind = "NEW_AP"
	// AlertSSIDChanged: a baseline BSSID now advertises a different SSID.
	AlertSSIDChanged AlertKind = "SSID_CHANGED"
	// AlertChannelChanged: a baseline BSSID moved to a different channel.
	AlertChannelChanged AlertKind = "CH_CHANGED"
)

// Alert is an unsolicited rogue-detector finding pushed to the controller.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	SSID      string    `json:"ssid"`
	BSSID     string    `json:"bssid"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
