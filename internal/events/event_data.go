package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// StopOpenedData contains data for StopOpened events
type StopOpenedData struct {
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Kind       string  `json:"kind"`
	EntryPrice float64 `json:"entry_price"`
	StopPrice  float64 `json:"stop_price"`
}

// EventType returns the event type for StopOpenedData
func (d *StopOpenedData) EventType() EventType {
	return StopOpened
}

// StopTriggeredData contains data for StopTriggered events
type StopTriggeredData struct {
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	StopPrice  float64 `json:"stop_price"`
	Source     string  `json:"source"` // "tick" or "reevaluate"
}

// EventType returns the event type for StopTriggeredData
func (d *StopTriggeredData) EventType() EventType {
	return StopTriggered
}

// StopClosedData contains data for StopClosed events
type StopClosedData struct {
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`
}

// EventType returns the event type for StopClosedData
func (d *StopClosedData) EventType() EventType {
	return StopClosed
}

// LimitUpdatedData contains data for LimitUpdated events
type LimitUpdatedData struct {
	Level     string `json:"level"`
	EntityID  string `json:"entity_id"`
	Metric    string `json:"metric"`
	Threshold string `json:"threshold"`
}

// EventType returns the event type for LimitUpdatedData
func (d *LimitUpdatedData) EventType() EventType {
	return LimitUpdated
}

// LimitRemovedData contains data for LimitRemoved events
type LimitRemovedData struct {
	Level    string `json:"level"`
	EntityID string `json:"entity_id"`
	Metric   string `json:"metric"`
}

// EventType returns the event type for LimitRemovedData
func (d *LimitRemovedData) EventType() EventType {
	return LimitRemoved
}

// LimitViolationInfo is one violated limit within a LimitViolatedData event.
type LimitViolationInfo struct {
	Level    string `json:"level"`
	EntityID string `json:"entity_id"`
	Metric   string `json:"metric"`
	Limit    string `json:"limit"`
	Current  string `json:"current"`
}

// LimitViolatedData contains data for LimitViolated events
type LimitViolatedData struct {
	Level      string               `json:"level"`
	EntityID   string               `json:"entity_id"`
	Violations []LimitViolationInfo `json:"violations"`
}

// EventType returns the event type for LimitViolatedData
func (d *LimitViolatedData) EventType() EventType {
	return LimitViolated
}

// VaRBreachData contains data for VaRBreach events
type VaRBreachData struct {
	CurrentVaR      float64 `json:"current_var"`
	VaRLimit        float64 `json:"var_limit"`
	DaysUntilBreach int     `json:"days_until_breach"`
	Confidence      float64 `json:"confidence"`
	Recommendation  string  `json:"recommendation"`
}

// EventType returns the event type for VaRBreachData
func (d *VaRBreachData) EventType() EventType {
	return VaRBreach
}

// MarginCallRiskData contains data for MarginCallRisk events
type MarginCallRiskData struct {
	RiskLevel          string   `json:"risk_level"`
	CurrentUtilization float64  `json:"current_utilization"`
	HoursUntilCall     *float64 `json:"hours_until_call,omitempty"`
	Recommendation     string   `json:"recommendation"`
}

// EventType returns the event type for MarginCallRiskData
func (d *MarginCallRiskData) EventType() EventType {
	return MarginCallRisk
}

// VolatilitySpikeData contains data for VolatilitySpike events
type VolatilitySpikeData struct {
	Current        float64 `json:"current"`
	Threshold      float64 `json:"threshold"`
	SpikeMagnitude float64 `json:"spike_magnitude"`
}

// EventType returns the event type for VolatilitySpikeData
func (d *VolatilitySpikeData) EventType() EventType {
	return VolatilitySpike
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
