package police

// DefaultJurisdiction is the constant jurisdiction string stamped onto every
// submission payload.
const DefaultJurisdiction = "IN"

// Payload is the creation request accepted by the external Incident API.
// Optional fields are pointers so absent values serialize as JSON null.
type Payload struct {
	IncidentType      string  `json:"incident_type"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	DateOccurred      *string `json:"date_occurred"`
	Location          *string `json:"location"`
	Jurisdiction      string  `json:"jurisdiction"`
	PlatformsInvolved *string `json:"platforms_involved"`
	PerpetratorInfo   *string `json:"perpetrator_info"`
	EvidenceNotes     *string `json:"evidence_notes"`
}

// CreateResult is the response body for a successful incident creation.
type CreateResult struct {
	ID string `json:"id"`
}
