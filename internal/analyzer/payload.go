package analyzer

import "time"

// AccountData describes the account posture of the entity being scored.
type AccountData struct {
	OpenedAt        time.Time `json:"openedAt"`
	KYCVerified     bool      `json:"kycVerified"`
	LastActiveAt    time.Time `json:"lastActiveAt,omitempty"`
	FailedLogins24h int       `json:"failedLogins24h,omitempty"`
	HomeCountry     string    `json:"homeCountry,omitempty"`
}

// Transaction is one observed or historical transaction.
type Transaction struct {
	Amount             float64   `json:"amount"` // local currency
	Category           string    `json:"category,omitempty"`
	DestinationCountry string    `json:"destinationCountry,omitempty"`
	DestinationAccount string    `json:"destinationAccount,omitempty"`
	Channel            string    `json:"channel,omitempty"` // app, web, ussd, pos
	Timestamp          time.Time `json:"timestamp"`
}

// TransactionData is the current transaction plus a bounded recent
// history supplied by the caller.
type TransactionData struct {
	Current Transaction   `json:"current"`
	History []Transaction `json:"history,omitempty"`
}

// LocationPoint is a single geolocation observation.
type LocationPoint struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Area       string    `json:"area,omitempty"`    // city/province label
	Country    string    `json:"country,omitempty"` // ISO 3166-1 alpha-2
	VPNOrProxy bool      `json:"vpnOrProxy,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LocationData is the current location plus a bounded recent trail,
// most recent trail entry last.
type LocationData struct {
	Current LocationPoint   `json:"current"`
	Trail   []LocationPoint `json:"trail,omitempty"`
}

// DeviceData describes the device used for the observed action.
type DeviceData struct {
	DeviceID    string    `json:"deviceId"`
	FirstSeenAt time.Time `json:"firstSeenAt,omitempty"`
	Rooted      bool      `json:"rooted,omitempty"`
	Emulator    bool      `json:"emulator,omitempty"`
	TamperedApp bool      `json:"tamperedApp,omitempty"`
	// SIMSwappedAt is the carrier-reported time of the last SIM swap,
	// when known to the caller.
	SIMSwappedAt *time.Time `json:"simSwappedAt,omitempty"`
}

// SessionData describes the session behind the action; evaluated by the
// device analyzer when present.
type SessionData struct {
	DurationSeconds   int `json:"durationSeconds,omitempty"`
	FailedPINAttempts int `json:"failedPinAttempts,omitempty"`
	// ScriptedTiming is set by the caller's capture layer when input
	// cadence looks automated.
	ScriptedTiming bool `json:"scriptedTiming,omitempty"`
}
